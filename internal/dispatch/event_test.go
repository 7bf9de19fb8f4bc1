package dispatch

import (
	"errors"
	"fmt"
	"testing"
)

const notificationPayload = `{
  "Records": [
    {
      "eventTime": "2024-01-01T00:00:00Z",
      "s3": {
        "bucket": {"name": "media"},
        "object": {"key": "media-input/a.mp4", "eTag": "abc123", "size": 1024}
      }
    }
  ]
}`

func TestDecodeBareNotification(t *testing.T) {
	ev, err := DecodeStorageEvent([]byte(notificationPayload))
	if err != nil {
		t.Fatalf("DecodeStorageEvent returned error: %v", err)
	}
	want := StorageEvent{
		BucketName:     "media",
		ObjectKey:      "media-input/a.mp4",
		ObjectETag:     "abc123",
		ObjectSize:     1024,
		EventTimestamp: "2024-01-01T00:00:00Z",
	}
	if ev != want {
		t.Fatalf("decoded event = %+v, want %+v", ev, want)
	}
}

func TestDecodeEnvelopedNotification(t *testing.T) {
	env := fmt.Sprintf(`{"Type": "Notification", "Message": %q}`, notificationPayload)
	ev, err := DecodeStorageEvent([]byte(env))
	if err != nil {
		t.Fatalf("DecodeStorageEvent returned error: %v", err)
	}
	if ev.BucketName != "media" || ev.ObjectETag != "abc123" {
		t.Fatalf("unexpected event from envelope: %+v", ev)
	}
}

func TestDecodeFailures(t *testing.T) {
	cases := map[string]string{
		"not json":        `{{{`,
		"no records":      `{"Records": []}`,
		"missing bucket":  `{"Records": [{"eventTime": "t", "s3": {"object": {"key": "k", "eTag": "e"}}}]}`,
		"missing key":     `{"Records": [{"eventTime": "t", "s3": {"bucket": {"name": "b"}, "object": {"eTag": "e"}}}]}`,
		"missing etag":    `{"Records": [{"eventTime": "t", "s3": {"bucket": {"name": "b"}, "object": {"key": "k"}}}]}`,
		"envelope broken": `{"Type": "Notification", "Message": "not json"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeStorageEvent([]byte(body))
			if err == nil {
				t.Fatal("expected a decode error")
			}
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("error is not a *DecodeError: %v", err)
			}
			if !Terminal(err) {
				t.Fatal("decode errors must classify as terminal")
			}
		})
	}
}
