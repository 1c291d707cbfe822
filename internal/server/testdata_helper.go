package server

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"
)

// testDescriptorSetBytes builds a minimal FileDescriptorSet for testing:
// test.proto with test.v1.TestService/TestMethod and its two messages.
func testDescriptorSetBytes() []byte {
	set := &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{
			{
				Name:    proto.String("test.proto"),
				Package: proto.String("test.v1"),
				Syntax:  proto.String("proto3"),
				MessageType: []*descriptorpb.DescriptorProto{
					{Name: proto.String("TestRequest"), Field: []*descriptorpb.FieldDescriptorProto{
						{Name: proto.String("name"), Number: proto.Int32(1), Type: descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()},
					}},
					{Name: proto.String("TestResponse"), Field: []*descriptorpb.FieldDescriptorProto{
						{Name: proto.String("message"), Number: proto.Int32(1), Type: descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(), Label: descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum()},
					}},
				},
				Service: []*descriptorpb.ServiceDescriptorProto{
					{Name: proto.String("TestService"), Method: []*descriptorpb.MethodDescriptorProto{
						{Name: proto.String("TestMethod"), InputType: proto.String(".test.v1.TestRequest"), OutputType: proto.String(".test.v1.TestResponse")},
					}},
				},
			},
		},
	}
	data, err := proto.Marshal(set)
	if err != nil {
		panic(err)
	}
	return data
}
