package centrifugo

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
)

const (
	apiPackage = "centrifugal.centrifugo.api"

	// BatchMethod is the full gRPC method name of the Centrifugo batch call.
	BatchMethod = "/" + apiPackage + ".CentrifugoApi/Batch"

	// methodPublish is Command.MethodType.PUBLISH.
	methodPublish protoreflect.EnumNumber = 0
)

// schema holds the descriptors of the subset of the Centrifugo API used here.
type schema struct {
	batchRequest  protoreflect.MessageDescriptor
	batchResponse protoreflect.MessageDescriptor
	command       protoreflect.MessageDescriptor
	publish       protoreflect.MessageDescriptor
	reply         protoreflect.MessageDescriptor
	replyError    protoreflect.MessageDescriptor

	commands   protoreflect.FieldDescriptor // BatchRequest.commands
	cmdID      protoreflect.FieldDescriptor // Command.id
	cmdMethod  protoreflect.FieldDescriptor // Command.method
	cmdPublish protoreflect.FieldDescriptor // Command.publish
	pubChannel protoreflect.FieldDescriptor // PublishRequest.channel
	pubData    protoreflect.FieldDescriptor // PublishRequest.data
	replies    protoreflect.FieldDescriptor // BatchResponse.replies
	replyID    protoreflect.FieldDescriptor // Reply.id
	replyErr   protoreflect.FieldDescriptor // Reply.error
	errCode    protoreflect.FieldDescriptor // Error.code
	errMessage protoreflect.FieldDescriptor // Error.message
}

var loadSchema = sync.OnceValues(buildSchema)

func buildSchema() (*schema, error) {
	fd, err := protodesc.NewFile(apiFileDescriptor(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build centrifugo api descriptor: %w", err)
	}

	msgs := fd.Messages()
	s := &schema{
		batchRequest:  msgs.ByName("BatchRequest"),
		batchResponse: msgs.ByName("BatchResponse"),
		command:       msgs.ByName("Command"),
		publish:       msgs.ByName("PublishRequest"),
		reply:         msgs.ByName("Reply"),
		replyError:    msgs.ByName("Error"),
	}

	s.commands = s.batchRequest.Fields().ByName("commands")
	s.cmdID = s.command.Fields().ByName("id")
	s.cmdMethod = s.command.Fields().ByName("method")
	s.cmdPublish = s.command.Fields().ByName("publish")
	s.pubChannel = s.publish.Fields().ByName("channel")
	s.pubData = s.publish.Fields().ByName("data")
	s.replies = s.batchResponse.Fields().ByName("replies")
	s.replyID = s.reply.Fields().ByName("id")
	s.replyErr = s.reply.Fields().ByName("error")
	s.errCode = s.replyError.Fields().ByName("code")
	s.errMessage = s.replyError.Fields().ByName("message")
	return s, nil
}

func apiFileDescriptor() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("centrifugo/api.proto"),
		Package: proto.String(apiPackage),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Command"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("id", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
					typed("method", 2, descriptorpb.FieldDescriptorProto_TYPE_ENUM, "Command.MethodType"),
					scalar("params", 3, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
					typed("publish", 4, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, "PublishRequest"),
				},
				EnumType: []*descriptorpb.EnumDescriptorProto{
					{
						Name: proto.String("MethodType"),
						Value: []*descriptorpb.EnumValueDescriptorProto{
							{Name: proto.String("PUBLISH"), Number: proto.Int32(int32(methodPublish))},
							{Name: proto.String("BROADCAST"), Number: proto.Int32(1)},
						},
					},
				},
			},
			{
				Name: proto.String("PublishRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("channel", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("data", 2, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
					scalar("b64data", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("skip_history", 4, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
					repeated(typed("tags", 5, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, "PublishRequest.TagsEntry")),
				},
				NestedType: []*descriptorpb.DescriptorProto{
					{
						Name: proto.String("TagsEntry"),
						Field: []*descriptorpb.FieldDescriptorProto{
							scalar("key", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
							scalar("value", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
						},
						Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
					},
				},
			},
			{
				Name: proto.String("BatchRequest"),
				Field: []*descriptorpb.FieldDescriptorProto{
					repeated(typed("commands", 1, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, "Command")),
				},
			},
			{
				Name: proto.String("Error"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("code", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
					scalar("message", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				},
			},
			{
				Name: proto.String("Reply"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("id", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
					typed("error", 2, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, "Error"),
					scalar("result", 3, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				},
			},
			{
				Name: proto.String("BatchResponse"),
				Field: []*descriptorpb.FieldDescriptorProto{
					repeated(typed("replies", 1, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, "Reply")),
				},
			},
		},
	}
}

func scalar(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

// typed declares a message or enum field; typeName is relative to the api package.
func typed(name string, number int32, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
	f := scalar(name, number, typ)
	f.TypeName = proto.String("." + apiPackage + "." + typeName)
	return f
}

func repeated(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}
