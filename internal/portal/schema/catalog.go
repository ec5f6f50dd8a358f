package schema

import "fmt"

// Service is a bilingual public-service record as stored and seeded.
type Service struct {
	ID            string   `yaml:"id" json:"id"`
	TitleFR       string   `yaml:"title_fr" json:"title_fr"`
	TitleAR       string   `yaml:"title_ar" json:"title_ar"`
	DescriptionFR string   `yaml:"description_fr" json:"description_fr,omitempty"`
	DescriptionAR string   `yaml:"description_ar" json:"description_ar,omitempty"`
	Category      string   `yaml:"category" json:"category"`
	Icon          string   `yaml:"icon" json:"icon,omitempty"`
	EstimatedTime string   `yaml:"estimated_time" json:"estimated_time,omitempty"`
	Difficulty    string   `yaml:"difficulty" json:"difficulty,omitempty"`
	Cost          string   `yaml:"cost" json:"cost,omitempty"`
	Offline       bool     `yaml:"offline" json:"offline"`
	Requirements  []string `yaml:"requirements" json:"requirements,omitempty"`
	Steps         []string `yaml:"steps" json:"steps,omitempty"`
}

// Validate checks the fields the services table constrains.
func (s *Service) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("service id is required")
	}
	if s.TitleFR == "" || s.TitleAR == "" {
		return fmt.Errorf("service %s: title_fr and title_ar are required", s.ID)
	}
	if s.Category == "" {
		return fmt.Errorf("service %s: category is required", s.ID)
	}
	if err := validateDifficulty(s.Difficulty); err != nil {
		return fmt.Errorf("service %s: %w", s.ID, err)
	}
	return nil
}

// Document is an official document that can be requested.
type Document struct {
	ID             string   `yaml:"id" json:"id"`
	TitleFR        string   `yaml:"title_fr" json:"title_fr"`
	TitleAR        string   `yaml:"title_ar" json:"title_ar"`
	DescriptionFR  string   `yaml:"description_fr" json:"description_fr,omitempty"`
	DescriptionAR  string   `yaml:"description_ar" json:"description_ar,omitempty"`
	Icon           string   `yaml:"icon" json:"icon,omitempty"`
	ProcessingTime string   `yaml:"processing_time" json:"processing_time,omitempty"`
	Cost           string   `yaml:"cost" json:"cost,omitempty"`
	Offline        bool     `yaml:"offline" json:"offline"`
	Requirements   []string `yaml:"requirements" json:"requirements,omitempty"`
}

func (d *Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if d.TitleFR == "" || d.TitleAR == "" {
		return fmt.Errorf("document %s: title_fr and title_ar are required", d.ID)
	}
	return nil
}

// Procedure is a multi-step administrative procedure.
type Procedure struct {
	ID            string   `yaml:"id" json:"id"`
	TitleFR       string   `yaml:"title_fr" json:"title_fr"`
	TitleAR       string   `yaml:"title_ar" json:"title_ar"`
	DescriptionFR string   `yaml:"description_fr" json:"description_fr,omitempty"`
	DescriptionAR string   `yaml:"description_ar" json:"description_ar,omitempty"`
	Category      string   `yaml:"category" json:"category"`
	Difficulty    string   `yaml:"difficulty" json:"difficulty,omitempty"`
	EstimatedTime string   `yaml:"estimated_time" json:"estimated_time,omitempty"`
	Cost          string   `yaml:"cost" json:"cost,omitempty"`
	Offline       bool     `yaml:"offline" json:"offline"`
	Steps         []string `yaml:"steps" json:"steps,omitempty"`
	Requirements  []string `yaml:"requirements" json:"requirements,omitempty"`
}

func (p *Procedure) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("procedure id is required")
	}
	if p.TitleFR == "" || p.TitleAR == "" {
		return fmt.Errorf("procedure %s: title_fr and title_ar are required", p.ID)
	}
	if p.Category == "" {
		return fmt.Errorf("procedure %s: category is required", p.ID)
	}
	if err := validateDifficulty(p.Difficulty); err != nil {
		return fmt.Errorf("procedure %s: %w", p.ID, err)
	}
	return nil
}

// FAQ is a bilingual question/answer pair. QuestionFR is its natural key.
type FAQ struct {
	QuestionFR string `yaml:"question_fr" json:"question_fr"`
	QuestionAR string `yaml:"question_ar" json:"question_ar"`
	AnswerFR   string `yaml:"answer_fr" json:"answer_fr"`
	AnswerAR   string `yaml:"answer_ar" json:"answer_ar"`
	Category   string `yaml:"category" json:"category,omitempty"`
	Tags       string `yaml:"tags" json:"tags,omitempty"`
}

func (f *FAQ) Validate() error {
	if f.QuestionFR == "" || f.QuestionAR == "" {
		return fmt.Errorf("faq: question_fr and question_ar are required")
	}
	if f.AnswerFR == "" || f.AnswerAR == "" {
		return fmt.Errorf("faq %q: answer_fr and answer_ar are required", f.QuestionFR)
	}
	return nil
}

// ValidDifficulties mirrors the CHECK constraint on services and procedures.
var ValidDifficulties = []string{"easy", "medium", "hard"}

func validateDifficulty(d string) error {
	if d == "" {
		return nil
	}
	for _, v := range ValidDifficulties {
		if d == v {
			return nil
		}
	}
	return fmt.Errorf("invalid difficulty %q (want easy, medium or hard)", d)
}

// LocalizedService is a Service projected onto one language for API output.
type LocalizedService struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Icon          string   `json:"icon"`
	EstimatedTime string   `json:"estimated_time"`
	Difficulty    string   `json:"difficulty"`
	Cost          string   `json:"cost"`
	Offline       bool     `json:"offline"`
	Requirements  []string `json:"requirements"`
	Steps         []string `json:"steps"`
}

// LocalizedDocument is a Document projected onto one language.
type LocalizedDocument struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Icon           string   `json:"icon"`
	ProcessingTime string   `json:"processing_time"`
	Cost           string   `json:"cost"`
	Offline        bool     `json:"offline"`
	Requirements   []string `json:"requirements"`
}

// LocalizedProcedure is a Procedure projected onto one language.
type LocalizedProcedure struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Difficulty    string   `json:"difficulty"`
	EstimatedTime string   `json:"estimated_time"`
	Cost          string   `json:"cost"`
	Offline       bool     `json:"offline"`
	Steps         []string `json:"steps"`
	Requirements  []string `json:"requirements"`
}

// Category is a distinct category with its display label.
type Category struct {
	Category string `json:"category"`
	Label    string `json:"label"`
}

// LocalizedFAQ is a FAQ entry projected onto one language.
type LocalizedFAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Category string `json:"category"`
	Views    int    `json:"views"`
}
