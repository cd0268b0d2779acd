package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Message is a unit of work handed from a producer to a consumer.
type Message struct {
	Topic      string
	Payload    []byte
	QoS        int32
	Retained   bool
	Seq        uint64
	ReceivedAt time.Time
}

// DeliveryStatus defines where a message is in its consumption lifecycle.
type DeliveryStatus int32

const (
	DeliveryStatus_PENDING DeliveryStatus = iota
	DeliveryStatus_DONE
	DeliveryStatus_FAILED
)

var deliveryStatusName = map[DeliveryStatus]string{
	DeliveryStatus_PENDING: "DELIVERY_STATUS_PENDING",
	DeliveryStatus_DONE:    "DELIVERY_STATUS_DONE",
	DeliveryStatus_FAILED:  "DELIVERY_STATUS_FAILED",
}

func (s DeliveryStatus) String() string {
	if name, ok := deliveryStatusName[s]; ok {
		return name
	}

	return fmt.Sprintf("DELIVERY_STATUS_UNKNOWN(%d)", int32(s))
}

// Delivery records the outcome of handing a message to a consumer.
type Delivery struct {
	Seq       uint64
	Topic     string
	Status    DeliveryStatus
	Worker    int
	Error     string
	UpdatedAt time.Time
}

// MarshalDelivery encodes d as a protobuf Struct.
func MarshalDelivery(d *Delivery) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"seq":        strconv.FormatUint(d.Seq, 10),
		"topic":      d.Topic,
		"status":     d.Status.String(),
		"worker":     float64(d.Worker),
		"error":      d.Error,
		"updated_at": d.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build delivery struct: %w", err)
	}

	return proto.Marshal(s)
}

// UnmarshalDelivery decodes a delivery encoded by MarshalDelivery.
func UnmarshalDelivery(bz []byte) (*Delivery, error) {
	s := new(structpb.Struct)
	if err := proto.Unmarshal(bz, s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal delivery: %w", err)
	}

	fields := s.GetFields()

	status, err := ParseDeliveryStatus(fields["status"].GetStringValue())
	if err != nil {
		return nil, err
	}

	updatedAt, err := time.Parse(time.RFC3339Nano, fields["updated_at"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("failed to parse delivery timestamp: %w", err)
	}

	seq, err := strconv.ParseUint(fields["seq"].GetStringValue(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse delivery sequence: %w", err)
	}

	return &Delivery{
		Seq:       seq,
		Topic:     fields["topic"].GetStringValue(),
		Status:    status,
		Worker:    int(fields["worker"].GetNumberValue()),
		Error:     fields["error"].GetStringValue(),
		UpdatedAt: updatedAt,
	}, nil
}

// ParseDeliveryStatus parses either the full status name
// ("DELIVERY_STATUS_DONE") or its short form ("done"), ignoring case.
func ParseDeliveryStatus(name string) (DeliveryStatus, error) {
	upper := strings.ToUpper(name)

	for s, n := range deliveryStatusName {
		if n == upper || n == "DELIVERY_STATUS_"+upper {
			return s, nil
		}
	}

	return 0, fmt.Errorf("unknown delivery status: %q", name)
}
