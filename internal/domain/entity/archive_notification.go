package entity

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// EventObjectFinalize marks a notification about a newly written object.
const EventObjectFinalize = "OBJECT_FINALIZE"

// Attribute names carried by archive notifications.
const (
	AttrEventType = "eventType"
	AttrBucketID  = "bucketId"
	AttrObjectID  = "objectId"
)

const s3ObjectCreatedPrefix = "s3:ObjectCreated:"

type ArchiveNotification struct {
	EventType string
	BucketID  string
	ObjectID  string
}

func (n ArchiveNotification) IsFinalize() bool {
	return n.EventType == EventObjectFinalize
}

// NotificationFromAttributes reads a notification from message attributes.
func NotificationFromAttributes(attrs map[string]string) ArchiveNotification {
	return ArchiveNotification{
		EventType: attrs[AttrEventType],
		BucketID:  attrs[AttrBucketID],
		ObjectID:  attrs[AttrObjectID],
	}
}

type s3Event struct {
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key string `json:"key"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// NotificationFromS3Event reads a notification from an S3/MinIO bucket
// notification body. Only the first record is used; MinIO emits one
// record per event.
func NotificationFromS3Event(body []byte) (ArchiveNotification, error) {
	var ev s3Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return ArchiveNotification{}, fmt.Errorf("decode s3 event: %w", err)
	}
	if len(ev.Records) == 0 {
		return ArchiveNotification{}, fmt.Errorf("s3 event has no records")
	}

	rec := ev.Records[0]
	key, err := url.QueryUnescape(rec.S3.Object.Key)
	if err != nil {
		return ArchiveNotification{}, fmt.Errorf("unescape object key %q: %w", rec.S3.Object.Key, err)
	}

	eventType := rec.EventName
	if strings.HasPrefix(eventType, s3ObjectCreatedPrefix) {
		eventType = EventObjectFinalize
	}

	return ArchiveNotification{
		EventType: eventType,
		BucketID:  rec.S3.Bucket.Name,
		ObjectID:  key,
	}, nil
}
