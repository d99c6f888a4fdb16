package jobs

type JobType string

const (
	TypeEmailSend      JobType = "email.send"
	TypeCleanupPending JobType = "users.cleanup_pending"
)

func (t JobType) IsValid() bool {
	switch t {
	case TypeEmailSend, TypeCleanupPending:
		return true
	default:
		return false
	}
}
