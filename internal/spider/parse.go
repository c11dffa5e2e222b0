package spider

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/postly/scout/internal/model"
	"github.com/postly/scout/internal/textutil"
)

// detailDocument mirrors the Next.js data payload for one posting. Most
// structured fields live under v5_processed_job_data; the top-level fields
// are the raw posting.
type detailDocument struct {
	PageProps struct {
		JobInformation struct {
			Title          string          `json:"title"`
			RequisitionID  string          `json:"requisition_id"`
			CompanyName    string          `json:"company_name"`
			Description    string          `json:"description"`
			ApplyURL       string          `json:"apply_url"`
			EmploymentType string          `json:"employment_type"`
			Location       string          `json:"location"`
			PublishedAt    string          `json:"published_at"`
			EnrichedCompany map[string]any `json:"enriched_company_data"`
			Processed      struct {
				YearlyMinCompensation json.RawMessage `json:"yearly_min_compensation"`
				YearlyMaxCompensation json.RawMessage `json:"yearly_max_compensation"`
				WorkplaceType         string          `json:"workplace_type"`
				WorkplaceLocation     string          `json:"formatted_workplace_location"`
				TechnicalTools        []string        `json:"technical_tools"`
				MinYearsExperience    json.RawMessage `json:"min_industry_and_role_yoe"`
				EmploymentType        string          `json:"employment_type"`
			} `json:"v5_processed_job_data"`
		} `json:"job_information"`
	} `json:"pageProps"`
}

// parseDetail turns a detail document into a CandidateJob. A document
// missing title or identifier is not job content and is dropped silently;
// a description below the minimum length is treated as a parse failure and
// counted as an error.
func (s *HiringCafe) parseDetail(id string, body []byte) (model.CandidateJob, bool) {
	var doc detailDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		s.logger.Warn("malformed detail document", "id", id, "error", err)
		s.countError()
		return model.CandidateJob{}, false
	}

	info := doc.PageProps.JobInformation
	if info.Title == "" || info.RequisitionID == "" {
		// Not a job document; the viewjob route also serves other content.
		return model.CandidateJob{}, false
	}

	description := textutil.HTMLToText(info.Description)
	if len(description) < s.cfg.MinDescriptionLen {
		s.logger.Debug("description too short, rejecting",
			"id", info.RequisitionID, "length", len(description))
		s.countError()
		return model.CandidateJob{}, false
	}

	proc := info.Processed

	company := info.CompanyName
	if name, ok := info.EnrichedCompany["name"].(string); ok && name != "" {
		company = name
	}
	if company == "" {
		company = "Unknown"
	}

	location := proc.WorkplaceLocation
	if location == "" {
		location = info.Location
	}

	employmentType := proc.EmploymentType
	if employmentType == "" {
		employmentType = info.EmploymentType
	}

	applyURL := info.ApplyURL
	if !strings.HasPrefix(applyURL, "http://") && !strings.HasPrefix(applyURL, "https://") {
		applyURL = s.cfg.SiteURL + "/viewjob/" + info.RequisitionID
	}

	candidate := model.CandidateJob{
		RequisitionID:  info.RequisitionID,
		Title:          strings.Join(strings.Fields(info.Title), " "),
		Company:        strings.Join(strings.Fields(company), " "),
		RawDescription: info.Description,
		Location:       location,
		SalaryMin:      safeFloat(proc.YearlyMinCompensation),
		SalaryMax:      safeFloat(proc.YearlyMaxCompensation),
		EmploymentType: employmentType,
		Workplace:      parseWorkplace(proc.WorkplaceType),
		Skills:         proc.TechnicalTools,
		MinExperience:  safeInt(proc.MinYearsExperience),
		ApplyURL:       applyURL,
		Source:         SourceName,
		PostedAt:       parseTimestamp(info.PublishedAt),
		Meta:           companyMeta(info.EnrichedCompany),
	}
	return candidate, true
}

func parseWorkplace(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "remote":
		return model.WorkplaceRemote
	case "hybrid":
		return model.WorkplaceHybrid
	case "onsite", "on-site":
		return model.WorkplaceOnsite
	default:
		return model.WorkplaceUnknown
	}
}

// safeFloat coerces a JSON value that should be numeric but is sometimes a
// string or free text ("negotiable"). Returns nil when no number can be had.
func safeFloat(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return &v
		}
	}
	return nil
}

func safeInt(raw json.RawMessage) *int {
	f := safeFloat(raw)
	if f == nil {
		return nil
	}
	v := int(*f)
	return &v
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// companyMeta copies the enriched company bag into the candidate's opaque
// metadata. The pipeline never interprets these keys; the store serializes
// them wholesale.
func companyMeta(enriched map[string]any) map[string]any {
	if len(enriched) == 0 {
		return nil
	}
	meta := make(map[string]any, len(enriched))
	for k, v := range enriched {
		if k == "name" {
			continue // promoted to the company field
		}
		meta[k] = v
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
