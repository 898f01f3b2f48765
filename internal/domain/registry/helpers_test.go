package registry

import (
	"context"
	"testing"
	"time"

	"github.com/webitel/im-presence-service/internal/domain/event"
	"github.com/webitel/im-presence-service/internal/domain/model"
)

func newTestConnector(t *testing.T, userID model.UserID, buffer int) Connector {
	t.Helper()
	conn := NewConnector(context.Background(), model.Identity{
		User: &model.User{ID: userID, Name: "user " + string(userID)},
	}, ConnectMetadata{Platform: "test"}, buffer)
	t.Cleanup(conn.Close)
	return conn
}

func recvWithin(conn Connector, d time.Duration) (event.Eventer, bool) {
	select {
	case ev := <-conn.Recv():
		return ev, true
	case <-time.After(d):
		return nil, false
	}
}
