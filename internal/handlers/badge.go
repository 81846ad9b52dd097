package handlers

import (
	"context"

	"github.com/gdg-garage/observe-api/internal/badges"
)

type BadgeHandler struct {
	engine *badges.Engine
}

func NewBadgeHandler(engine *badges.Engine) *BadgeHandler {
	return &BadgeHandler{engine: engine}
}

type ListUserBadgesRequest struct {
	UserID string `query:"userId" doc:"Only this user's badges, everyone's when empty"`
}

type ListUserBadgesResponse struct {
	Body struct {
		Badges []badges.UserBadge `json:"badges"`
	}
}

func (h *BadgeHandler) HandleListUserBadges(ctx context.Context, input *ListUserBadgesRequest) (*ListUserBadgesResponse, error) {
	list, err := h.engine.UserBadges(ctx, input.UserID)
	if err != nil {
		return nil, httpError(err)
	}

	res := &ListUserBadgesResponse{}
	res.Body.Badges = list
	if res.Body.Badges == nil {
		res.Body.Badges = []badges.UserBadge{}
	}
	return res, nil
}
