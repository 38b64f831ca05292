// Package domain defines the supply-chain product records served by the
// records API and the batch summaries derived from them.
package domain

import "time"

// RecordStatus is the workflow state of a product record.
type RecordStatus string

// Record statuses reported by the records API.
const (
	StatusDraft     RecordStatus = "DRAFT"
	StatusActive    RecordStatus = "ACTIVE"
	StatusCompleted RecordStatus = "COMPLETED"
	StatusRejected  RecordStatus = "REJECTED"
)

// SourceType distinguishes farmed lots from wild-capture landings.
type SourceType string

// Supported source types.
const (
	SourceFarmed      SourceType = "FARMED"
	SourceWildCapture SourceType = "WILD_CAPTURE"
)

// StageStatus is the completion state of a single supply-chain stage.
type StageStatus string

// Stage statuses. Only StageCompleted counts towards progress.
const (
	StagePending    StageStatus = "PENDING"
	StageInProgress StageStatus = "IN_PROGRESS"
	StageCompleted  StageStatus = "COMPLETED"
)

// Fallback labels applied when a record omits product details.
const (
	UnknownScientificName = "Unknown"
	UnknownCommonName     = "Unknown Species"
	DefaultUnit           = "kg"
)

// IndividualBatchPrefix prefixes the synthesized batch key of records that
// carry no batch identifier.
const IndividualBatchPrefix = "INDIVIDUAL-"

// Species names the organism a product was made from.
type Species struct {
	ScientificName string `json:"scientificName,omitempty"`
	CommonName     string `json:"commonName,omitempty"`
}

// Product carries the physical lot details of a record.
type Product struct {
	Quantity float64  `json:"quantity"`
	Unit     string   `json:"unit,omitempty"`
	Species  *Species `json:"species,omitempty"`
}

// Stage is one named step of a product's journey.
type Stage struct {
	Name   string      `json:"name"`
	Status StageStatus `json:"status"`
}

// Origin locates where a lot was harvested or landed.
type Origin struct {
	Location string `json:"location,omitempty"`
	Facility string `json:"facility,omitempty"`
}

// Creator identifies who registered the record.
type Creator struct {
	Name         string `json:"name,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// ProductRecord is a single trackable product unit as returned by the records API.
// BatchID is optional; absent, null and empty values are equivalent.
type ProductRecord struct {
	ID         string       `json:"id"`
	BatchID    string       `json:"batchId,omitempty"`
	Status     RecordStatus `json:"status"`
	SourceType SourceType   `json:"sourceType"`
	Product    *Product     `json:"product,omitempty"`
	Stages     []Stage      `json:"stages"`
	Origin     Origin       `json:"origin"`
	Creator    Creator      `json:"creator"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// Quantity returns the product quantity, treating a missing product as zero.
func (r ProductRecord) Quantity() float64 {
	if r.Product == nil {
		return 0
	}
	return r.Product.Quantity
}

// Unit returns the product unit label or DefaultUnit.
func (r ProductRecord) Unit() string {
	if r.Product == nil || r.Product.Unit == "" {
		return DefaultUnit
	}
	return r.Product.Unit
}

// SpeciesOrUnknown returns the record species with the unknown labels filled in.
func (r ProductRecord) SpeciesOrUnknown() Species {
	out := Species{ScientificName: UnknownScientificName, CommonName: UnknownCommonName}
	if r.Product == nil || r.Product.Species == nil {
		return out
	}
	if r.Product.Species.ScientificName != "" {
		out.ScientificName = r.Product.Species.ScientificName
	}
	if r.Product.Species.CommonName != "" {
		out.CommonName = r.Product.Species.CommonName
	}
	return out
}

// CompletionRatio is the fraction of stages marked completed. A record with
// no stages counts as zero percent complete.
func (r ProductRecord) CompletionRatio() float64 {
	completed := 0
	for _, stage := range r.Stages {
		if stage.Status == StageCompleted {
			completed++
		}
	}
	total := len(r.Stages)
	if total == 0 {
		total = 1
	}
	return float64(completed) / float64(total)
}

// BatchKey returns the grouping key: the batch id or a synthesized
// per-record key when the record has none.
func (r ProductRecord) BatchKey() string {
	if r.BatchID == "" {
		return IndividualBatchPrefix + r.ID
	}
	return r.BatchID
}

// BatchSummary is a derived, read-only view over records sharing a batch key.
// Representative fields are copied from the first product in the group.
type BatchSummary struct {
	BatchID         string          `json:"batchId"`
	Products        []ProductRecord `json:"products"`
	TotalQuantity   float64         `json:"totalQuantity"`
	Unit            string          `json:"unit"`
	AverageProgress int             `json:"averageProgress"`
	Stages          []string        `json:"stages"`
	Status          RecordStatus    `json:"status"`
	SourceType      SourceType      `json:"sourceType"`
	Species         Species         `json:"species"`
	Origin          Origin          `json:"origin"`
	Creator         Creator         `json:"creator"`
	CreatedAt       time.Time       `json:"createdAt"`
}
