package webhook

// Event is the parsed identity-provider event. Only the three account
// lifecycle kinds are handled; everything else dispatches as KindOther
// and is acknowledged without side effects.
type Event struct {
	Type string         `json:"type"`
	Data AccountPayload `json:"data"`
}

type AccountPayload struct {
	ID             string         `json:"id"`
	EmailAddresses []EmailAddress `json:"email_addresses"`
	ImageURL       string         `json:"image_url"`
	Username       string         `json:"username"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	Deleted        bool           `json:"deleted"`
}

type EmailAddress struct {
	EmailAddress string `json:"email_address"`
}

type Kind string

const (
	KindAccountCreated Kind = "account.created"
	KindAccountUpdated Kind = "account.updated"
	KindAccountDeleted Kind = "account.deleted"
	KindOther          Kind = "other"
)

func (e *Event) Kind() Kind {
	switch Kind(e.Type) {
	case KindAccountCreated, KindAccountUpdated, KindAccountDeleted:
		return Kind(e.Type)
	}
	return KindOther
}

// AccountData is the canonical shape handed to the account synchronizer.
type AccountData struct {
	ExternalID string
	Name       string
	Username   string
	Email      string
	Picture    string
}
