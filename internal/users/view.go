package users

import "time"

// Summary is the minimal projection returned by register and login.
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// ProviderIdentity is the public projection of a linked Google identity.
type ProviderIdentity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// LinkedInIdentity is the public projection of a linked LinkedIn identity.
type LinkedInIdentity struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	ProfileURL string `json:"profileUrl"`
	Picture    string `json:"picture,omitempty"`
}

// View is the account projection returned to its owner. It never carries credentials.
type View struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Email              string            `json:"email,omitempty"`
	LinkedInProfileURL string            `json:"linkedinProfileUrl,omitempty"`
	HasVoted           bool              `json:"hasVoted"`
	VotedCandidateID   *string           `json:"votedCandidateId,omitempty"`
	Google             *ProviderIdentity `json:"google,omitempty"`
	LinkedIn           *LinkedInIdentity `json:"linkedin,omitempty"`
	HasPassword        bool              `json:"hasPassword"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

// Summary projects the user for authentication responses.
func (u User) Summary() Summary {
	return Summary{ID: u.ID, Name: u.Name, Email: u.Email}
}

// View projects the user for its owner.
func (u User) View() View {
	view := View{
		ID:                 u.ID,
		Name:               u.Name,
		Email:              u.Email,
		LinkedInProfileURL: u.LinkedInProfileURL,
		HasVoted:           u.HasVoted,
		VotedCandidateID:   u.VotedCandidateID,
		HasPassword:        u.HasPassword(),
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
	if u.GoogleID != "" {
		view.Google = &ProviderIdentity{ID: u.GoogleID, Email: u.GoogleEmail}
	}
	if u.LinkedInID != "" {
		view.LinkedIn = &LinkedInIdentity{
			ID:         u.LinkedInID,
			Email:      u.LinkedInEmail,
			ProfileURL: u.LinkedInProfileSearchURL,
			Picture:    u.LinkedInPicture,
		}
	}
	return view
}
