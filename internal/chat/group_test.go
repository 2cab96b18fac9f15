package chat

import (
	"context"
	"testing"

	"chat-server/internal/models"
	"chat-server/internal/ws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateGroup(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.addUser(t, "admin")
	other := e.addUser(t, "other")

	group, cerr := e.group.GetOrCreateGroup(ctx, admin.ID, "gophers")
	require.Nil(t, cerr)

	// Same admin, same name: the existing group comes back.
	again, cerr := e.group.GetOrCreateGroup(ctx, admin.ID, "gophers")
	require.Nil(t, cerr)
	assert.Equal(t, group.ID, again.ID)

	// Names are globally unique: a different admin gets a conflict.
	_, cerr = e.group.GetOrCreateGroup(ctx, other.ID, "gophers")
	require.NotNil(t, cerr)
	assert.Equal(t, KindConflict, cerr.Kind)
}

func TestGetOrCreateGroupInvalidAdmin(t *testing.T) {
	e := newEnv(t)

	_, cerr := e.group.GetOrCreateGroup(context.Background(), 42, "nobody-home")
	require.NotNil(t, cerr)
	assert.Equal(t, KindNotFound, cerr.Kind)
	assert.Equal(t, "Invalid admin_id", cerr.Message)
}

func TestGroupSendAuthorization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.addUser(t, "admin")
	member := e.addUser(t, "member")
	outsider := e.addUser(t, "outsider")

	group, cerr := e.group.GetOrCreateGroup(ctx, admin.ID, "team")
	require.Nil(t, cerr)
	require.NoError(t, e.db.AddGroupMember(ctx, group.ID, member.ID))

	// Non-member always fails.
	cerr = e.group.SendMessage(ctx, group.ID, outsider.ID, "let me in")
	require.NotNil(t, cerr)
	assert.Equal(t, KindUnauthorized, cerr.Kind)

	// Member and admin always succeed.
	require.Nil(t, e.group.SendMessage(ctx, group.ID, member.ID, "hi"))
	require.Nil(t, e.group.SendMessage(ctx, group.ID, admin.ID, "hello"))

	history, err := e.db.LoadGroupHistory(ctx, group.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2, "the rejected message must not be persisted")
}

func TestJoinGroupRequiresMembership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.addUser(t, "admin")
	outsider := e.addUser(t, "outsider")

	group, cerr := e.group.GetOrCreateGroup(ctx, admin.ID, "team")
	require.Nil(t, cerr)

	conn := e.connect(t, outsider)
	cerr = e.group.JoinGroup(ctx, conn, outsider.ID, group.ID)
	require.NotNil(t, cerr)
	assert.Equal(t, KindNotAMember, cerr.Kind)
	assert.Empty(t, conn.deliveries())

	// The admin is an effective member without a membership row.
	adminConn := e.connect(t, admin)
	require.Nil(t, e.group.JoinGroup(ctx, adminConn, admin.ID, group.ID))
	require.Len(t, adminConn.deliveries(), 1)
}

func TestHistoryOrderOnJoin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.addUser(t, "A")
	b := e.addUser(t, "B")
	c := e.addUser(t, "C")

	group, cerr := e.group.GetOrCreateGroup(ctx, a.ID, "alpha")
	require.Nil(t, cerr)
	require.NoError(t, e.db.AddGroupMember(ctx, group.ID, b.ID))
	require.NoError(t, e.db.AddGroupMember(ctx, group.ID, c.ID))

	require.Nil(t, e.group.SendMessage(ctx, group.ID, a.ID, "hi"))
	require.Nil(t, e.group.SendMessage(ctx, group.ID, b.ID, "yo"))

	conn := e.connect(t, c)
	require.Nil(t, e.group.JoinGroup(ctx, conn, c.ID, group.ID))

	deliveries := conn.deliveries()
	require.Len(t, deliveries, 1)
	history, ok := deliveries[0].(models.GroupHistory)
	require.True(t, ok)
	assert.Equal(t, group.ID, history.GroupID)
	require.Len(t, history.History, 2)
	assert.Equal(t, "A", history.History[0].SenderUsername)
	assert.Equal(t, "hi", history.History[0].Content)
	assert.Equal(t, "B", history.History[1].SenderUsername)
	assert.Equal(t, "yo", history.History[1].Content)
}

func TestAddMemberAndSendScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.addUser(t, "A")
	b := e.addUser(t, "B")

	group, cerr := e.group.GetOrCreateGroup(ctx, a.ID, "g1")
	require.Nil(t, cerr)

	aConn := e.connect(t, a)
	require.Nil(t, e.group.JoinGroup(ctx, aConn, a.ID, group.ID))

	require.Nil(t, e.group.AddMember(ctx, group.ID, b.ID, a.ID))

	// The addition is announced as a persisted system message from A.
	broadcasts := aConn.broadcasts()
	require.Len(t, broadcasts, 1)
	assert.Equal(t, "A", broadcasts[0].SenderUsername)
	assert.Equal(t, "I added B", broadcasts[0].Content)

	require.Nil(t, e.group.SendMessage(ctx, group.ID, b.ID, "hello"))

	broadcasts = aConn.broadcasts()
	require.Len(t, broadcasts, 2)
	assert.Equal(t, "B", broadcasts[1].SenderUsername)
	assert.Equal(t, "hello", broadcasts[1].Content)

	history, err := e.db.LoadGroupHistory(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, group.ID, history[1].ChatID)
	assert.Equal(t, b.ID, history[1].SenderID)
	assert.Equal(t, "hello", history[1].Content)
}

func TestAddMemberAuthorization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.addUser(t, "admin")
	target := e.addUser(t, "target")
	outsider := e.addUser(t, "outsider")

	group, cerr := e.group.GetOrCreateGroup(ctx, admin.ID, "team")
	require.Nil(t, cerr)

	cerr = e.group.AddMember(ctx, group.ID, target.ID, outsider.ID)
	require.NotNil(t, cerr)
	assert.Equal(t, KindUnauthorized, cerr.Kind)

	isMember, err := e.db.IsGroupMember(ctx, group.ID, target.ID)
	require.NoError(t, err)
	assert.False(t, isMember)
}

func TestAddMemberUnknownUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.addUser(t, "admin")

	group, cerr := e.group.GetOrCreateGroup(ctx, admin.ID, "team")
	require.Nil(t, cerr)

	cerr = e.group.AddMember(ctx, group.ID, 999, admin.ID)
	require.NotNil(t, cerr)
	assert.Equal(t, KindNotFound, cerr.Kind)
}

func TestRemoveMember(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.addUser(t, "admin")
	member := e.addUser(t, "member")
	other := e.addUser(t, "other")

	group, cerr := e.group.GetOrCreateGroup(ctx, admin.ID, "team")
	require.Nil(t, cerr)
	require.NoError(t, e.db.AddGroupMember(ctx, group.ID, member.ID))
	require.NoError(t, e.db.AddGroupMember(ctx, group.ID, other.ID))

	// Only the admin may remove members.
	cerr = e.group.RemoveMember(ctx, group.ID, member.ID, other.ID)
	require.NotNil(t, cerr)
	assert.Equal(t, KindUnauthorized, cerr.Kind)

	require.Nil(t, e.group.RemoveMember(ctx, group.ID, member.ID, admin.ID))
	isMember, err := e.db.IsGroupMember(ctx, group.ID, member.ID)
	require.NoError(t, err)
	assert.False(t, isMember)

	history, err := e.db.LoadGroupHistory(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "I deleted member from group", history[0].Content)
}

func TestRemoveMemberNotAMember(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.addUser(t, "admin")
	stranger := e.addUser(t, "stranger")

	group, cerr := e.group.GetOrCreateGroup(ctx, admin.ID, "team")
	require.Nil(t, cerr)

	cerr = e.group.RemoveMember(ctx, group.ID, stranger.ID, admin.ID)
	require.NotNil(t, cerr)
	assert.Equal(t, KindNotAMember, cerr.Kind)

	// Removing a user that does not exist at all is not-found.
	cerr = e.group.RemoveMember(ctx, group.ID, 999, admin.ID)
	require.NotNil(t, cerr)
	assert.Equal(t, KindNotFound, cerr.Kind)

	// Neither failure leaves a system message behind.
	history, err := e.db.LoadGroupHistory(ctx, group.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestDeleteGroup(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	admin := e.addUser(t, "admin")
	member := e.addUser(t, "member")

	group, cerr := e.group.GetOrCreateGroup(ctx, admin.ID, "doomed")
	require.Nil(t, cerr)
	require.NoError(t, e.db.AddGroupMember(ctx, group.ID, member.ID))
	require.Nil(t, e.group.SendMessage(ctx, group.ID, member.ID, "short-lived"))

	// Only the admin may delete.
	cerr = e.group.DeleteGroup(ctx, group.ID, member.ID)
	require.NotNil(t, cerr)
	assert.Equal(t, KindUnauthorized, cerr.Kind)

	memberConn := e.connect(t, member)
	require.Nil(t, e.group.JoinGroup(ctx, memberConn, member.ID, group.ID))

	require.Nil(t, e.group.DeleteGroup(ctx, group.ID, admin.ID))

	_, err := e.db.GetGroupByID(ctx, group.ID)
	assert.Error(t, err)
	history, herr := e.db.LoadGroupHistory(ctx, group.ID)
	require.NoError(t, herr)
	assert.Empty(t, history, "messages cascade with the group")

	// The room is gone: no further deliveries to old subscribers.
	before := len(memberConn.deliveries())
	e.registry.Broadcast(ws.GroupRoom(group.ID), "stale")
	assert.Len(t, memberConn.deliveries(), before)

	cerr = e.group.DeleteGroup(ctx, group.ID, admin.ID)
	require.NotNil(t, cerr)
	assert.Equal(t, KindNotFound, cerr.Kind)
}
