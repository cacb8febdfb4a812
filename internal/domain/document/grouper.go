package document

// GroupEvidence returns the evidence group for a selected document within the
// active (non-archived) pool: every active non-calendar document sharing the
// selected document's originating-message id. Multiple attachments inside one
// email are one claim unit.
//
// Calendar entries never group by message id — they are appointment evidence,
// attached separately as date evidence. A document without a message id, a
// calendar document, or an empty result all collapse to a single-element
// group containing just the selected document.
func GroupEvidence(selected *MedicalDocument, pool []*MedicalDocument) []*MedicalDocument {
	if selected == nil {
		return nil
	}
	if selected.MessageID == nil || selected.SourceType == SourceCalendar {
		return []*MedicalDocument{selected}
	}

	var group []*MedicalDocument
	for _, doc := range pool {
		if doc.Archived() || doc.SourceType == SourceCalendar {
			continue
		}
		if doc.MessageID == nil || *doc.MessageID != *selected.MessageID {
			continue
		}
		group = append(group, doc)
	}

	if len(group) == 0 {
		return []*MedicalDocument{selected}
	}
	return group
}
