package entity

import "fmt"

// SequenceKey identifica un contador de numeración: emisor + serie + modelo.
type SequenceKey struct {
	IssuerID string
	Series   int
	Model    DocumentModel
}

func (k SequenceKey) String() string {
	return fmt.Sprintf("%s:%s:%03d", k.IssuerID, k.Model, k.Series)
}
