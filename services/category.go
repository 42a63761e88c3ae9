package services

import (
	"strings"

	"cardex-server/models"
)

// roleCategories is the classification table. Sets must stay disjoint;
// buildRoleIndex panics at init if a role is listed twice.
var roleCategories = map[models.Category][]string{
	models.CategoryTech: {
		"software engineer", "software developer", "developer", "programmer",
		"frontend developer", "backend developer", "full stack developer",
		"ios developer", "android developer", "mobile developer",
		"web developer", "data scientist", "data analyst", "data engineer",
		"machine learning engineer", "devops engineer", "site reliability engineer",
		"cloud architect", "system administrator", "network engineer",
		"security engineer", "qa engineer", "test engineer", "it support",
		"database administrator", "ui designer", "ux designer", "product designer",
	},
	models.CategoryDoctor: {
		"doctor", "physician", "surgeon", "dentist", "pediatrician",
		"cardiologist", "dermatologist", "neurologist", "psychiatrist",
		"radiologist", "anesthesiologist", "orthopedist", "gynecologist",
		"nurse", "pharmacist", "physiotherapist", "veterinarian", "therapist",
	},
	models.CategoryEducation: {
		"teacher", "professor", "lecturer", "tutor", "principal",
		"researcher", "student", "teaching assistant", "librarian",
		"counselor", "instructor", "dean",
	},
	models.CategoryUtility: {
		"electrician", "plumber", "carpenter", "mechanic", "driver",
		"technician", "painter", "cleaner", "gardener", "security guard",
		"delivery partner", "courier", "tailor", "barber", "chef", "cook",
	},
	models.CategoryEntertainment: {
		"actor", "actress", "singer", "dancer", "comedian", "host",
		"influencer", "content creator", "youtuber", "streamer", "dj",
		"producer", "director", "model", "athlete",
	},
	models.CategoryArtist: {
		"artist", "graphic designer", "illustrator", "photographer",
		"videographer", "animator", "sculptor", "musician", "writer",
		"author", "poet", "architect", "interior designer", "fashion designer",
	},
	models.CategoryManagement: {
		"manager", "product manager", "project manager", "engineering manager",
		"ceo", "cto", "cfo", "coo", "founder", "co-founder", "director of operations",
		"team lead", "consultant", "hr manager", "operations manager",
		"marketing manager", "sales manager", "business analyst", "entrepreneur",
	},
	models.CategoryOthers: {
		"other", "freelancer", "self employed", "retired",
	},
}

var roleIndex = buildRoleIndex(roleCategories)

func buildRoleIndex(table map[models.Category][]string) map[string]models.Category {
	index := make(map[string]models.Category)
	for category, roles := range table {
		for _, role := range roles {
			key := normalizeRole(role)
			if prev, dup := index[key]; dup && prev != category {
				panic("role " + role + " listed under both " + string(prev) + " and " + string(category))
			}
			index[key] = category
		}
	}
	return index
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.Join(strings.Fields(role), " "))
}

// Classify maps a free-text role to its category. Matching is a case
// insensitive membership test; anything unknown is Others.
func Classify(role string) models.Category {
	if c, ok := roleIndex[normalizeRole(role)]; ok {
		return c
	}
	return models.CategoryOthers
}

// ParseCategory resolves a user supplied category name. The All sentinel
// is accepted.
func ParseCategory(s string) (models.Category, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, string(models.CategoryAll)) {
		return models.CategoryAll, true
	}
	for _, c := range models.Categories {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

var categoryDescriptors = map[models.Category]models.CategoryDescriptor{
	models.CategoryTech:          {Category: models.CategoryTech, Icon: "laptopcomputer", Color: "#3A86FF"},
	models.CategoryDoctor:        {Category: models.CategoryDoctor, Icon: "stethoscope", Color: "#E63946"},
	models.CategoryEducation:     {Category: models.CategoryEducation, Icon: "book", Color: "#F4A261"},
	models.CategoryUtility:       {Category: models.CategoryUtility, Icon: "wrench.and.screwdriver", Color: "#6C757D"},
	models.CategoryEntertainment: {Category: models.CategoryEntertainment, Icon: "film", Color: "#9B5DE5"},
	models.CategoryArtist:        {Category: models.CategoryArtist, Icon: "paintpalette", Color: "#F15BB5"},
	models.CategoryManagement:    {Category: models.CategoryManagement, Icon: "briefcase", Color: "#2A9D8F"},
	models.CategoryOthers:        {Category: models.CategoryOthers, Icon: "person.crop.circle", Color: models.DefaultCardColor},
}

// Describe returns the rendering descriptor of a category.
func Describe(c models.Category) models.CategoryDescriptor {
	if d, ok := categoryDescriptors[c]; ok {
		return d
	}
	return categoryDescriptors[models.CategoryOthers]
}

// Descriptors lists descriptors for every category in display order.
func Descriptors() []models.CategoryDescriptor {
	out := make([]models.CategoryDescriptor, 0, len(models.Categories))
	for _, c := range models.Categories {
		out = append(out, Describe(c))
	}
	return out
}
