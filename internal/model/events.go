package model

// Outbound event names pushed to live connections.
const (
	EventNewMessage          = "newMessage"
	EventMessageEdited       = "messageEdited"
	EventMessageDeleted      = "messageDeleted"
	EventNewGroup            = "newGroup"
	EventNewGroupMessage     = "newGroupMessage"
	EventGroupMessageEdited  = "groupMessageEdited"
	EventGroupMessageDeleted = "groupMessageDeleted"
	EventGroupUpdated        = "groupUpdated"
	EventGroupDeleted        = "groupDeleted"
	EventAddedToGroup        = "addedToGroup"
	EventRemovedFromGroup    = "removedFromGroup"
	EventMemberAdded         = "memberAdded"
	EventMemberRemoved       = "memberRemoved"
	EventGetOnlineUsers      = "getOnlineUsers"
)

// GroupMessageEvent is the payload of newGroupMessage and groupMessageEdited.
type GroupMessageEvent struct {
	GroupID string  `json:"groupId"`
	Message Message `json:"message"`
}

// GroupMessageDeletedEvent is the payload of groupMessageDeleted.
type GroupMessageDeletedEvent struct {
	GroupID   string `json:"groupId"`
	MessageID string `json:"messageId"`
}

// GroupRefEvent is the payload of groupDeleted and removedFromGroup.
type GroupRefEvent struct {
	GroupID string `json:"groupId"`
}

// MemberAddedEvent is the payload of memberAdded.
type MemberAddedEvent struct {
	GroupID   string  `json:"groupId"`
	NewMember UserRef `json:"newMember"`
}

// MemberRemovedEvent is the payload of memberRemoved.
type MemberRemovedEvent struct {
	GroupID         string `json:"groupId"`
	RemovedMemberID string `json:"removedMemberId"`
}
