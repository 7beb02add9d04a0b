package chat

import "github.com/suPer8Hu/learning-buddy/internal/common"

func NewSessionID() (string, error) { return common.NewULID() }

func NewJobID() (string, error) { return common.NewULID() }
