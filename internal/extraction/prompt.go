package extraction

import (
	"fmt"
	"strings"

	"github.com/lehigh-university-libraries/cardscan/internal/models"
)

var fieldHints = map[string]string{
	models.FullName:           "Complete name as shown",
	models.FirstName:          "First name only",
	models.LastName:           "Last name only",
	models.Email:              "Email address",
	models.Phone:              "Phone number (preserve international format)",
	models.CompanyName:        "Company name",
	models.Position:           "Job title/position",
	models.Address:            "Full address",
	models.City:               "City name",
	models.Country:            "Country",
	models.Website:            "Website URL",
	models.SocialMedia:        "Social media handles",
	models.CompanyDescription: "Brief company description if available",
	models.AdditionalEmail:    "Any email address printed on this side",
	models.AdditionalPhone:    "Any phone number printed on this side",
	models.AdditionalWebsite:  "Any website printed on this side",
	models.Services:           "Products or services listed",
}

// BuildPrompt returns the fixed instruction template for a side
func BuildPrompt(side models.Side) string {
	var intro, extra string
	switch side {
	case models.SideFront:
		intro = "Extract the following information from the FRONT of this business card image."
		extra = "- If only one name is visible, put it in full_name and first_name"
	case models.SideBack:
		intro = "Extract the following information from the BACK of this business card image. The back often holds social media, a company description, services or extra contact details."
		extra = "- Leave a field null rather than repeating something you are unsure of"
	default:
		intro = "Extract the following information from this business card image."
		extra = "- If only one name is visible, put it in full_name and first_name"
	}

	var fields strings.Builder
	keys := models.KeysFor(side)
	for i, k := range keys {
		sep := ","
		if i == len(keys)-1 {
			sep = ""
		}
		fmt.Fprintf(&fields, "    %q: %q%s\n", k, fieldHints[k], sep)
	}

	return fmt.Sprintf(`%s Be very careful with OCR accuracy.

Please return ONLY a JSON object with these exact fields (use null for missing information):
{
%s}

Important OCR corrections:
- Fix common OCR errors in phone numbers: letter O→digit 0, letter l→digit 1, letter I→digit 1
- Ensure email has @ symbol
- Handle both Western (First Last) and Asian naming conventions
%s

Do not include any explanation, markdown or text outside the JSON object.`, intro, fields.String(), extra)
}
