package templates

import "github.com/Ayash-Bera/querygen/internal/models"

type seedTemplate struct {
	id        string
	name      string
	text      string
	kind      models.TemplateType
	criterion string
	vars      map[string]interface{}
	priority  int
}

var builtinSeeds = []seedTemplate{
	// Base
	{"base-journalists", "Journalists", "{query} journalists", models.TemplateTypeBase, "", nil, 10},
	{"base-reporters", "Reporters contact", "{query} reporters contact", models.TemplateTypeBase, "", nil, 9},
	{"base-editors", "Editors and writers", "{query} editors and writers", models.TemplateTypeBase, "", nil, 8},
	{"base-media-contacts", "Media contacts", "{query} media contacts", models.TemplateTypeBase, "", nil, 8},
	{"base-press-role", "Press role email", "{query} {role} email", models.TemplateTypeBase, "", map[string]interface{}{"role": "press officer"}, 6},
	{"base-columnists", "Columnists and bloggers", "{query} columnists bloggers", models.TemplateTypeBase, "", nil, 5},

	// Country
	{"country-us", "US outlets", "{query} journalists at {outlets}", models.TemplateTypeCountrySpecific, "US",
		map[string]interface{}{"outlets": "New York Times OR Washington Post OR CNN"}, 7},
	{"country-uk", "UK outlets", "{query} journalists at {outlets}", models.TemplateTypeCountrySpecific, "UK",
		map[string]interface{}{"outlets": "BBC OR The Guardian OR The Times"}, 7},
	{"country-canada", "Canada outlets", "{query} journalists at {outlets}", models.TemplateTypeCountrySpecific, "Canada",
		map[string]interface{}{"outlets": "CBC OR Globe and Mail OR Toronto Star"}, 7},
	{"country-australia", "Australia outlets", "{query} journalists at {outlets}", models.TemplateTypeCountrySpecific, "Australia",
		map[string]interface{}{"outlets": "ABC OR Sydney Morning Herald OR The Australian"}, 7},
	{"country-germany", "Germany outlets", "{query} Journalisten {outlets}", models.TemplateTypeCountrySpecific, "Germany",
		map[string]interface{}{"outlets": "Der Spiegel OR Die Zeit OR FAZ"}, 7},
	{"country-france", "France outlets", "{query} journalistes {outlets}", models.TemplateTypeCountrySpecific, "France",
		map[string]interface{}{"outlets": "Le Monde OR Le Figaro OR AFP"}, 7},
	{"country-india", "India outlets", "{query} journalists at {outlets}", models.TemplateTypeCountrySpecific, "India",
		map[string]interface{}{"outlets": "Times of India OR The Hindu OR NDTV"}, 7},
	{"country-any", "Journalists in countries", "{query} journalists in {countries}", models.TemplateTypeCountrySpecific, "", nil, 6},

	// Category
	{"category-technology", "Technology journalists", "{category} journalists covering {query}", models.TemplateTypeCategorySpecific, "Technology", nil, 8},
	{"category-business", "Business reporters", "{category} reporters writing about {query}", models.TemplateTypeCategorySpecific, "Business", nil, 8},
	{"category-health", "Health correspondents", "{category} correspondents covering {query}", models.TemplateTypeCategorySpecific, "Health", nil, 8},
	{"category-politics", "Politics reporters", "{category} reporters covering {query} policy", models.TemplateTypeCategorySpecific, "Politics", nil, 8},
	{"category-sports", "Sports writers", "{category} writers covering {query}", models.TemplateTypeCategorySpecific, "Sports", nil, 8},
	{"category-entertainment", "Entertainment editors", "{category} editors covering {query}", models.TemplateTypeCategorySpecific, "Entertainment", nil, 8},
	{"category-any", "Category media contacts", "{query} {categories} media contacts", models.TemplateTypeCategorySpecific, "", nil, 6},

	// Beat
	{"beat-any", "Beat reporters", "{beat} beat reporters {query}", models.TemplateTypeBeatSpecific, "", nil, 7},
	{"beat-correspondents", "Beat correspondents", "{query} {beats} correspondents", models.TemplateTypeBeatSpecific, "", nil, 5},

	// Language
	{"language-any", "Journalists by language", "{query} journalists writing in {language}", models.TemplateTypeLanguageSpecific, "", nil, 5},
	{"language-spanish", "Spanish-language journalists", "{query} periodistas medios", models.TemplateTypeLanguageSpecific, "Spanish", nil, 6},

	// Composite
	{"composite-category-country", "Category journalists in country", "{category} journalists in {country} covering {query}", models.TemplateTypeComposite, "", nil, 9},
	{"composite-beat-countries", "Beat reporters in countries", "{beat} reporters in {countries} writing about {query}", models.TemplateTypeComposite, "", nil, 7},
	{"composite-topic", "Topic journalists", "{query} journalists covering {topics}", models.TemplateTypeComposite, "", nil, 6},
}

// BuiltinTemplates returns the templates inserted into an empty store.
func BuiltinTemplates() []models.QueryTemplate {
	out := make([]models.QueryTemplate, 0, len(builtinSeeds))
	for _, s := range builtinSeeds {
		out = append(out, models.QueryTemplate{
			ID:             s.id,
			Name:           s.name,
			Template:       s.text,
			Type:           s.kind,
			CriterionValue: s.criterion,
			Variables:      s.vars,
			Priority:       s.priority,
			IsActive:       true,
		})
	}
	return out
}
