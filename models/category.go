package models

// Category is the derived classification bucket of a card's role.
type Category string

const (
	CategoryTech          Category = "Tech"
	CategoryDoctor        Category = "Doctor"
	CategoryEducation     Category = "Education"
	CategoryUtility       Category = "Utility"
	CategoryEntertainment Category = "Entertainment"
	CategoryArtist        Category = "Artist"
	CategoryManagement    Category = "Management"
	CategoryOthers        Category = "Others"

	// CategoryAll is a filter sentinel. No card is ever classified as All.
	CategoryAll Category = "All"
)

// Categories lists every card category in display order.
var Categories = []Category{
	CategoryTech,
	CategoryDoctor,
	CategoryEducation,
	CategoryUtility,
	CategoryEntertainment,
	CategoryArtist,
	CategoryManagement,
	CategoryOthers,
}

// CategoryDescriptor is what a client needs to render a category chip.
type CategoryDescriptor struct {
	Category Category `json:"category"`
	Icon     string   `json:"icon"`
	Color    string   `json:"color"`
}
