package dispatch

import (
	"encoding/json"
	"fmt"
)

// StorageEvent is one notification that an object landed in the media
// bucket. Immutable once decoded; never persisted directly.
type StorageEvent struct {
	BucketName     string
	ObjectKey      string
	ObjectETag     string
	ObjectSize     int64
	EventTimestamp string
}

// DecodeError marks a malformed inbound message. It is terminal for that
// single message: redelivery cannot fix it.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode storage event: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// envelope is the notification wrapper used by fan-out transports: the
// Message field carries the JSON-encoded storage notification payload.
type envelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

type storageNotification struct {
	Records []storageNotificationRecord `json:"Records"`
}

type storageNotificationRecord struct {
	EventTime string `json:"eventTime"`
	S3        struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			ETag string `json:"eTag"`
			Size int64  `json:"size"`
		} `json:"object"`
	} `json:"s3"`
}

// DecodeStorageEvent parses one raw transport message into a StorageEvent.
// Both enveloped payloads (notification wrapper with an embedded JSON
// string) and bare storage notification payloads are accepted. All parse
// and validation failures are reported as *DecodeError.
func DecodeStorageEvent(body []byte) (StorageEvent, error) {
	payload := body
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return StorageEvent{}, &DecodeError{Err: err}
	}
	if env.Message != "" {
		payload = []byte(env.Message)
	}

	var notif storageNotification
	if err := json.Unmarshal(payload, &notif); err != nil {
		return StorageEvent{}, &DecodeError{Err: err}
	}
	if len(notif.Records) == 0 {
		return StorageEvent{}, &DecodeError{Err: fmt.Errorf("notification has no records")}
	}

	// Storage notifications carry a single record per message despite the
	// plural field.
	rec := notif.Records[0]
	ev := StorageEvent{
		BucketName:     rec.S3.Bucket.Name,
		ObjectKey:      rec.S3.Object.Key,
		ObjectETag:     rec.S3.Object.ETag,
		ObjectSize:     rec.S3.Object.Size,
		EventTimestamp: rec.EventTime,
	}
	switch {
	case ev.BucketName == "":
		return StorageEvent{}, &DecodeError{Err: fmt.Errorf("notification record missing bucket name")}
	case ev.ObjectKey == "":
		return StorageEvent{}, &DecodeError{Err: fmt.Errorf("notification record missing object key")}
	case ev.ObjectETag == "":
		return StorageEvent{}, &DecodeError{Err: fmt.Errorf("notification record missing object etag")}
	}
	return ev, nil
}
