package request

import "github.com/azzapp/billing-api/internal/shared/logutil"

// Sub addresses a web-originated subscription by its owning user and the
// web card it entitles.
type Sub struct {
	UserID    uint `request:"user_id,urlPart,"`
	WebCardID uint `request:"web_card_id,urlPart,"`
}

func (s Sub) FillLogContext(lctx logutil.Context) {
	lctx["user_id"] = s.UserID
	lctx["web_card_id"] = s.WebCardID
}
