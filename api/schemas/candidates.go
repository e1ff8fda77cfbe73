package schemas

import "time"

// SearchCandidate is a raw result returned by a source connector. Its URL is
// the deduplication key once normalized.
type SearchCandidate struct {
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Snippet      string    `json:"snippet"`
	SourceID     string    `json:"source_id"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// FetchedContent is the full page content retrieved for a candidate. It is
// owned by the content fetcher until handed to extraction and never mutated
// afterward. A failed fetch keeps the candidate with FetchSucceeded=false and
// empty text; downstream stages must tolerate missing content.
type FetchedContent struct {
	Candidate       SearchCandidate `json:"candidate"`
	RawText         string          `json:"raw_text"`
	RawHTML         string          `json:"raw_html,omitempty"`
	Title           string          `json:"title"`
	MetaDescription string          `json:"meta_description"`
	FetchedAt       time.Time       `json:"fetched_at"`
	FetchSucceeded  bool            `json:"fetch_succeeded"`
	HTTPStatus      int             `json:"http_status"`
}
