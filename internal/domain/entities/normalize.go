package entities

// NormalizeProduct merges payload over fallback field by field and forces the
// two rendering fields to concrete values. On create the fallback is the zero
// Product; on update it is the stored record, so fields missing from a partial
// payload are kept.
func NormalizeProduct(payload, fallback Product) Product {
	merged := fallback

	if payload.ID != "" {
		merged.ID = payload.ID
	}
	if payload.Title != "" {
		merged.Title = payload.Title
	}
	mergeString(&merged.Eyebrow, payload.Eyebrow)
	mergeString(&merged.Image, payload.Image)
	mergeString(&merged.ImageAlt, payload.ImageAlt)
	mergeString(&merged.Details, payload.Details)
	mergeString(&merged.Tag, payload.Tag)
	mergeString(&merged.PartNumber, payload.PartNumber)
	mergeString(&merged.PrimaryButtonText, payload.PrimaryButtonText)
	mergeString(&merged.PrimaryButtonLink, payload.PrimaryButtonLink)
	mergeString(&merged.SecondaryButtonText, payload.SecondaryButtonText)
	mergeString(&merged.SecondaryButtonLink, payload.SecondaryButtonLink)
	if payload.Colors != nil {
		merged.Colors = append([]string{}, payload.Colors...)
	} else if fallback.Colors != nil {
		merged.Colors = append([]string{}, fallback.Colors...)
	}
	merged.Extra = mergeExtra(fallback.Extra, payload.Extra)

	switch {
	case payload.Type != "":
		merged.Type = payload.Type
	case fallback.Type != "":
		merged.Type = fallback.Type
	default:
		merged.Type = DefaultCardType
	}

	switch {
	case payload.CardSize != "":
		merged.CardSize = payload.CardSize
	case fallback.CardSize != "":
		merged.CardSize = fallback.CardSize
	default:
		merged.CardSize = DefaultCardSize
	}

	return merged
}

// MergeShelf applies a partial shelf update. Title is only replaced when the
// payload carries one; secondaryTitle and items are inherited when absent.
// Extra keys from the payload are laid over the stored ones.
func MergeShelf(payload, fallback Shelf) Shelf {
	merged := fallback
	if payload.ID != "" {
		merged.ID = payload.ID
	}
	if payload.Title != "" {
		merged.Title = payload.Title
	}
	mergeString(&merged.SecondaryTitle, payload.SecondaryTitle)
	merged.Extra = mergeExtra(fallback.Extra, payload.Extra)
	if payload.Items != nil {
		merged.Items = payload.Items
	}
	if merged.Items == nil {
		merged.Items = []Product{}
	}
	return merged
}

// NormalizeItems runs every item through NormalizeProduct with an empty
// fallback.
func NormalizeItems(items []Product) []Product {
	out := make([]Product, 0, len(items))
	for _, item := range items {
		out = append(out, NormalizeProduct(item, Product{}))
	}
	return out
}

func mergeString(dst **string, src *string) {
	if src == nil {
		return
	}
	v := *src
	*dst = &v
}
