package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique audit job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewFileID generates a unique audit file ID with the "file_" prefix
func NewFileID() string {
	return "file_" + uuid.New().String()
}
