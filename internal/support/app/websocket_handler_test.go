package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/MYCE-Refactoring/myce-backend-sub000/internal/support/domain"
)

func TestRoomFeed_ConnectionsKeepIndependentSubscriptions(t *testing.T) {
	bc := new(mockBroadcaster)
	var subCtxs []context.Context
	bc.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		subCtxs = append(subCtxs, args.Get(0).(context.Context))
	}).Return(nil)

	feedA := &roomFeed{broadcaster: bc}
	feedB := &roomFeed{broadcaster: bc}

	assert.NoError(t, feedA.enter(domain.GeneralRoomCode("member-1"), func(domain.RoomEvent) {}))
	assert.NoError(t, feedB.enter(domain.GeneralRoomCode("member-1"), func(domain.RoomEvent) {}))

	// a second viewer entering the same room must not tear down the
	// first viewer's feed
	if assert.Len(t, subCtxs, 2) {
		assert.NoError(t, subCtxs[0].Err())
		assert.NoError(t, subCtxs[1].Err())
	}

	// re-entering replaces this connection's subscription only
	assert.NoError(t, feedA.enter(domain.GeneralRoomCode("member-2"), func(domain.RoomEvent) {}))
	if assert.Len(t, subCtxs, 3) {
		assert.Error(t, subCtxs[0].Err())
		assert.NoError(t, subCtxs[1].Err())
		assert.NoError(t, subCtxs[2].Err())
	}

	feedB.leave()
	assert.Error(t, subCtxs[1].Err())
}

func TestRoomFeed_SubscribeFailureLeavesNoSlot(t *testing.T) {
	bc := new(mockBroadcaster)
	bc.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

	feed := &roomFeed{broadcaster: bc}
	assert.Error(t, feed.enter(domain.GeneralRoomCode("member-1"), func(domain.RoomEvent) {}))
	assert.Nil(t, feed.cancel)
	feed.leave()
}
