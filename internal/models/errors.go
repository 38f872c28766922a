package models

import "errors"

// Application-wide standard errors
var (
	// Common resource errors
	ErrNotFound     = errors.New("resource not found")
	ErrWorkNotFound = errors.New("work not found")

	// Content loading & generation errors
	ErrGeneration            = errors.New("backend failed to generate content")
	ErrGenerationInProgress  = errors.New("generation is already in progress for this content")
	ErrContentNotReadyYet    = errors.New("content is not generated or ready yet")
	ErrPrerequisiteNotSaved  = errors.New("previous chapter must be saved before loading the next one")
	ErrNetwork               = errors.New("network request failed")
	ErrChapterOutOfRange     = errors.New("chapter index is out of range for this work")
	ErrEndingNotFound        = errors.New("ending not found")
	ErrNoEndingsAvailable    = errors.New("work has no endings to resolve")

	// Progression errors
	ErrChoiceNotFound  = errors.New("choice not found in the current scene")
	ErrNoActiveChoice  = errors.New("no choice is awaiting selection")
	ErrSessionFinished = errors.New("play session has reached settlement")

	// Save/restore errors
	ErrSaveSlotInvalid = errors.New("save slot is out of range")
	ErrSaveNotFound    = errors.New("no save found in this slot")
	ErrRestoreMismatch = errors.New("save payload references content that can no longer be resolved")

	// Creator mode errors
	ErrTriggerProtected = errors.New("dialogue item holds the choice trigger and cannot be deleted")
	ErrSceneNotFound    = errors.New("scene not found")
	ErrNotInCreatorMode = errors.New("operation requires creator mode")

	// General request errors
	ErrBadRequest     = errors.New("bad request")
	ErrInvalidInput   = errors.New("invalid input data")
	ErrInternalServer = errors.New("internal server error")
)
