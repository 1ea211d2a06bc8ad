package conversation

type Operation int

const (
	AddParticipants Operation = iota
	EditParticipants
	RemoveParticipants
	Update
	SendMessage
	MarkAsRead
	Typing
	Retransmit
	Join
	Leave
)

func (o Operation) String() string {
	switch o {
	case AddParticipants:
		return "addParticipants"
	case EditParticipants:
		return "editParticipants"
	case RemoveParticipants:
		return "removeParticipants"
	case Update:
		return "update"
	case SendMessage:
		return "sendMessage"
	case MarkAsRead:
		return "markAsRead"
	case Typing:
		return "typing"
	case Retransmit:
		return "retransmitEvents"
	case Join:
		return "join"
	case Leave:
		return "leave"
	}
	return "unknown"
}

// MayPerform decides whether actor may run op against the given conversation state.
// It has no side effects.
func MayPerform(c *Conversation, actor string, op Operation) bool {
	if c == nil {
		return false
	}
	if op == Join {
		_, active := c.Participants.Active(actor)
		return c.PublicJoin && !c.Direct && !active
	}
	if op == Retransmit {
		_, known := c.Participants.Get(actor)
		return known
	}

	p, ok := c.Participants.Active(actor)
	if !ok {
		return false
	}
	switch op {
	case AddParticipants, RemoveParticipants:
		return p.Flags.CanManageParticipants && !c.Direct
	case EditParticipants:
		return p.Flags.CanManageParticipants
	case Update:
		return p.Flags.IsOwner
	case SendMessage:
		return p.Flags.CanWrite
	case MarkAsRead, Typing, Leave:
		return true
	}
	return false
}
