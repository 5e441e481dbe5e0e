package task

import (
	"encoding/json"
	"fmt"
)

// ProdJSON is the root structure of a product folder's prod.json file.
// Unknown fields are ignored.
type ProdJSON struct {
	SchemaVersion string          `json:"schema_version"`
	ProdDetail    ProdDetail      `json:"prod_detail"`
	Playlist      *PlaylistConfig `json:"playlist,omitempty"`
	AffDetail     AffDetail       `json:"aff_detail"`
	UploadConfig  *UploadConfig   `json:"upload_config,omitempty"`
}

// ProdDetail holds the product metadata used for title and description
// generation.
type ProdDetail struct {
	ProdCode       string   `json:"prod_code"`
	ProdName       string   `json:"prod_name"`
	ProdShortDescr string   `json:"prod_short_descr"`
	ProdLongDescr  string   `json:"prod_long_descr"`
	ProdTags       []string `json:"prod_tags"`
	CategoryID     int      `json:"category_id"`
	Privacy        string   `json:"privacy"`
}

// PlaylistConfig selects or names the playlist uploads are added to.
type PlaylistConfig struct {
	PlaylistID        string `json:"playlist_id"`
	PlaylistName      string `json:"playlist_name"`
	CreateIfNotExists bool   `json:"create_if_not_exists"`
}

// AffDetail holds the affiliate section of prod.json.
type AffDetail struct {
	Platform     string         `json:"platform"`
	URLsList     []AffiliateURL `json:"urls_list"`
	DiscountCode string         `json:"discount_code"`
}

// UploadConfig holds per-product upload flags.
type UploadConfig struct {
	MadeForKids       bool `json:"made_for_kids"`
	NotifySubscribers bool `json:"notify_subscribers"`
	Embeddable        bool `json:"embeddable"`
}

// ParseProdJSON decodes and validates a prod.json document.
func ParseProdJSON(data []byte) (*ProdJSON, error) {
	p := &ProdJSON{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse prod.json: %w", err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *ProdJSON) applyDefaults() {
	if p.ProdDetail.CategoryID == 0 {
		p.ProdDetail.CategoryID = 22
	}
	if p.ProdDetail.Privacy == "" {
		p.ProdDetail.Privacy = "public"
	}
	if p.UploadConfig == nil {
		p.UploadConfig = &UploadConfig{NotifySubscribers: true, Embeddable: true}
	}
}

// Validate checks required fields and enum values.
func (p *ProdJSON) Validate() error {
	if p.ProdDetail.ProdCode == "" {
		return fmt.Errorf("prod.json: prod_code is required")
	}
	if p.ProdDetail.ProdName == "" {
		return fmt.Errorf("prod.json: prod_name is required")
	}
	if p.ProdDetail.ProdShortDescr == "" {
		return fmt.Errorf("prod.json: prod_short_descr is required")
	}
	switch p.ProdDetail.Privacy {
	case "public", "unlisted", "private":
	default:
		return fmt.Errorf("prod.json: privacy must be public, unlisted or private, got %q", p.ProdDetail.Privacy)
	}
	return nil
}
