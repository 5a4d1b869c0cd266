package persona

// Role distinguishes the two sides of a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Stats mirrors the profile counters shown next to an avatar.
type Stats struct {
	Posts     int `json:"posts"`
	Followers int `json:"followers"`
	Following int `json:"following"`
}

// Social holds optional handles.
type Social struct {
	Twitter  string `json:"twitter,omitempty"`
	Dribbble string `json:"dribbble,omitempty"`
}

// Persona is one of the fixed chat identities exposed to clients.
type Persona struct {
	ID          int64  `json:"id"`
	Role        Role   `json:"role"`
	Name        string `json:"name"`
	Department  string `json:"department"`
	About       string `json:"about"`
	Avatar      string `json:"avatar"`
	OpeningLine string `json:"openingLine,omitempty"`
	Stats       Stats  `json:"stats"`
	Social      Social `json:"social"`
}

const (
	UserID      int64 = 1
	AssistantID int64 = 2
)

// Seed provides the human user and the JAC assistant.
func Seed() []Persona {
	return []Persona{
		{
			ID:         UserID,
			Role:       RoleUser,
			Name:       "Derek Vance",
			Department: "Engineering",
			About:      "Full Stack Engineer",
			Avatar:     "https://res.cloudinary.com/ddz7abcyq/image/upload/w_1000,c_fill,ar_1:1,g_auto,r_max,bo_5px_solid_red,b_rgb:262c35/v1742348178/programmer-4709802_kzazw6.jpg",
		},
		{
			ID:          AssistantID,
			Role:        RoleAssistant,
			Name:        "JAC",
			Department:  "Department of Intelligence",
			About:       "JARVIS inspired AI ChatBot",
			Avatar:      "https://res.cloudinary.com/ddz7abcyq/image/upload/w_1000,c_fill,ar_1:1,g_auto,r_max,bo_5px_solid_red,b_rgb:262c35/v1742348039/k-2so-4169866_id4dsu.jpg",
			OpeningLine: "Hey there! Ask Away!",
			Social:      Social{Twitter: "ROBOTS", Dribbble: "ROBOTS"},
		},
	}
}
