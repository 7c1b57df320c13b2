package catalog

// CandidateSeed describes one candidate to create while seeding.
type CandidateSeed struct {
	Name         string `json:"name" validate:"required,min=2,max=200"`
	Description  string `json:"description" validate:"required,max=500"`
	LinkedInURL  string `json:"linkedinUrl" validate:"required,url"`
	ProfileImage string `json:"profileImage,omitempty" validate:"omitempty,url"`
}

// TeamSeed describes one team and its candidates. Teams are active unless Inactive is set.
type TeamSeed struct {
	Name        string          `json:"name" validate:"required,min=3,max=200"`
	Description string          `json:"description,omitempty" validate:"max=300"`
	Inactive    bool            `json:"inactive,omitempty"`
	Candidates  []CandidateSeed `json:"candidates" validate:"dive"`
}

// DefaultSeed returns the sample catalog used for local development.
func DefaultSeed() []TeamSeed {
	return []TeamSeed{
		{
			Name:        "Tech Innovators",
			Description: "Leading the way in technology and innovation",
			Candidates: []CandidateSeed{
				{
					Name:        "John Doe",
					Description: "Senior Software Engineer with 10+ years of experience in full-stack development",
					LinkedInURL: "https://www.linkedin.com/in/johndoe",
				},
				{
					Name:        "Jane Smith",
					Description: "Tech Lead specializing in cloud architecture and DevOps practices",
					LinkedInURL: "https://www.linkedin.com/in/janesmith",
				},
			},
		},
		{
			Name:        "Design Masters",
			Description: "Creative excellence in design and user experience",
			Candidates: []CandidateSeed{
				{
					Name:        "Alice Johnson",
					Description: "UX Designer with expertise in user research and interface design",
					LinkedInURL: "https://www.linkedin.com/in/alicejohnson",
				},
				{
					Name:        "Bob Williams",
					Description: "Creative Director with a passion for brand identity and visual storytelling",
					LinkedInURL: "https://www.linkedin.com/in/bobwilliams",
				},
			},
		},
	}
}
