package jobs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sixtyapp/engagement-engine/internal/engagement"
)

func TestDefaultPriorityForHighForEntityAndDealFeatures(t *testing.T) {
	assert.Equal(t, engagement.PriorityHigh, defaultPriorityFor("deal_momentum_nudge"))
	assert.Equal(t, engagement.PriorityHigh, defaultPriorityFor("meeting_debrief"))
}

func TestDefaultPriorityForLowForReengagement(t *testing.T) {
	assert.Equal(t, engagement.PriorityLow, defaultPriorityFor("reengagement"))
}

func TestDefaultPriorityForDefaultsNormal(t *testing.T) {
	assert.Equal(t, engagement.PriorityNormal, defaultPriorityFor("daily_digest"))
	assert.Equal(t, engagement.PriorityNormal, defaultPriorityFor("morning_brief"))
	assert.Equal(t, engagement.PriorityNormal, defaultPriorityFor("meeting_prep"))
}

func TestOrgScopedFeaturesAreExactlyDigests(t *testing.T) {
	assert.True(t, orgScopedFeatures["daily_digest"])
	assert.True(t, orgScopedFeatures["morning_brief"])
	assert.False(t, orgScopedFeatures["meeting_prep"])
	assert.False(t, orgScopedFeatures["meeting_debrief"])
	assert.False(t, orgScopedFeatures["deal_momentum_nudge"])
	assert.False(t, orgScopedFeatures["reengagement"])
}

func TestMeetingDebriefTaskDecodesCallEnqueuePayload(t *testing.T) {
	// Matches the literal payload crmdata.AsynqEnqueuer builds.
	raw := []byte(`{"org_id":"org_1","call_id":"call_42"}`)
	var task meetingDebriefTask
	assert.NoError(t, json.Unmarshal(raw, &task))
	assert.Equal(t, "org_1", task.OrgID)
	assert.Equal(t, "call_42", task.CallID)
}

func TestMeetingDebriefTaskEmptyPayloadLeavesCallIDBlank(t *testing.T) {
	var task meetingDebriefTask
	assert.NoError(t, json.Unmarshal([]byte(`{}`), &task))
	assert.Empty(t, task.CallID)
}
