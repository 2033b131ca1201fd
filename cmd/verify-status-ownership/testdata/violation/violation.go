package violation

import (
	"context"

	"github.com/maccrin/meetbot/internal/domain/meeting/model"
	"github.com/maccrin/meetbot/internal/domain/meeting/ports"
)

func MarkDone(ctx context.Context, st ports.MeetingStore) error {
	return st.UpdateStatus(ctx, "m1", model.StatusCompleted, model.StatusUpdate{})
}

func Reason() model.ReasonCode {
	return "R_JOIN_FAILED"
}

func Fine() model.ReasonCode {
	_ = "R_lowercase is not a code"
	return model.RJoinFailed
}
