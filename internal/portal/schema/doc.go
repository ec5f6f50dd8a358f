// Package schema defines the portal's record types and the YAML seed format.
//
// # Reference data
//
// Services, documents, procedures and FAQ entries are bilingual (French and
// Arabic). They are loaded from YAML seed files:
//
//	services:
//	  - id: passport
//	    title_fr: "Passeport"
//	    title_ar: "جواز السفر"
//	    category: documents
//	    difficulty: medium
//	    requirements: ["Photos passeport"]
//	faq:
//	  - question_fr: "..."
//	    question_ar: "..."
//	    answer_fr: "..."
//	    answer_ar: "..."
//
// A default seed is embedded in the binary; a seed directory may override or
// extend it, one or more *.yaml files merged in name order.
//
// # Offline queue
//
// QueueItem is one row of the server-side offline queue: an append-only log
// of client actions keyed by an auto-increment id. Rows only ever move from
// unsynced to synced. Timestamps are stored as TimeLayout strings.
//
// # Languages
//
// Lang selects the localized columns. Only LangFR and LangAR exist; anything
// else is rejected with ErrUnsupportedLang before it reaches SQL.
package schema
