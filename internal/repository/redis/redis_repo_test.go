package redis

import (
	"testing"

	"github.com/edupgarcia/bulk-processing/internal/domain/entity"
)

func TestKeys(t *testing.T) {
	if got := attemptsKey(entity.StageUnpack, "m-1"); got != "pipeline:unpack:attempts:m-1" {
		t.Errorf("attemptsKey = %q", got)
	}
	if got := statusKey(entity.StageTransform, "readings-2024-06-01"); got != "pipeline:transform:status:readings-2024-06-01" {
		t.Errorf("statusKey = %q", got)
	}
	if attemptsKey(entity.StageUnpack, "k") == attemptsKey(entity.StageTransform, "k") {
		t.Error("stages share attempt counters")
	}
}
