package dispatch

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FrameKind is the closed set of inbound frames the dispatcher handles.
type FrameKind int

const (
	FrameText FrameKind = iota + 1
	FrameImage
	FrameAudio
	FrameTyping
	FrameReadReceipt
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameImage:
		return "image"
	case FrameAudio:
		return "audio"
	case FrameTyping:
		return "typing"
	case FrameReadReceipt:
		return "read_receipt"
	default:
		return "unknown"
	}
}

// frameKinds maps the inbound "type" field to a kind. A frame without a type
// is text when it carries a message.
var frameKinds = map[string]FrameKind{
	"text":         FrameText,
	"file":         FrameImage,
	"image":        FrameImage,
	"audio":        FrameAudio,
	"typing":       FrameTyping,
	"message_read": FrameReadReceipt,
}

const mediaSeparator = ";base64,"

var validate = validator.New()

// messageID accepts both 17 and "17". Any id is valid, including 0.
type messageID uint64

func (id *messageID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid message_id %s", data)
	}
	*id = messageID(v)
	return nil
}

type rawFrame struct {
	Type      *string   `json:"type"`
	Message   *string   `json:"message"`
	FileData  string    `json:"file_data"`
	FileName  string    `json:"file_name"`
	MessageID *messageID `json:"message_id"`
}

type textFrame struct {
	Message *string `validate:"required"`
}

type imageFrame struct {
	FileData string `validate:"required"`
	FileName string `validate:"required"`
}

type audioFrame struct {
	FileData string `validate:"required"`
}

type readReceiptFrame struct {
	MessageID *messageID `validate:"required"`
}

// Frame is a decoded inbound frame. Only the fields of its kind are set.
type Frame struct {
	Kind      FrameKind
	Text      string
	FileData  string
	FileName  string
	MessageID uint64
}

// Decode parses one inbound frame and checks the fields its kind requires.
func Decode(data []byte) (Frame, error) {
	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}

	var kind FrameKind
	if raw.Type == nil {
		if raw.Message == nil {
			return Frame{}, fmt.Errorf("%w: no type and no message", ErrUnknownFrame)
		}
		kind = FrameText
	} else {
		k, ok := frameKinds[*raw.Type]
		if !ok {
			return Frame{}, fmt.Errorf("%w: type %q", ErrUnknownFrame, *raw.Type)
		}
		kind = k
	}

	var (
		frame = Frame{Kind: kind}
		err   error
	)
	switch kind {
	case FrameText:
		err = validate.Struct(textFrame{Message: raw.Message})
		if err == nil {
			frame.Text = *raw.Message
		}
	case FrameImage:
		err = validate.Struct(imageFrame{FileData: raw.FileData, FileName: raw.FileName})
		frame.FileData, frame.FileName = raw.FileData, raw.FileName
	case FrameAudio:
		err = validate.Struct(audioFrame{FileData: raw.FileData})
		frame.FileData = raw.FileData
	case FrameTyping:
	case FrameReadReceipt:
		err = validate.Struct(readReceiptFrame{MessageID: raw.MessageID})
		if err == nil {
			frame.MessageID = uint64(*raw.MessageID)
		}
	}
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %s frame: %v", ErrDecodeFailure, kind, err)
	}
	return frame, nil
}

// decodeMedia extracts the bytes of a "<descriptor>;base64,<data>" payload.
func decodeMedia(payload string) ([]byte, error) {
	_, encoded, ok := strings.Cut(payload, mediaSeparator)
	if !ok {
		return nil, fmt.Errorf("%w: media payload without %q", ErrDecodeFailure, mediaSeparator)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: media payload: %v", ErrDecodeFailure, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty media payload", ErrDecodeFailure)
	}
	return data, nil
}
