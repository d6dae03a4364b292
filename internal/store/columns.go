package store

// Fixed column names of the ledger schema. Readers must address columns by
// name, never by position; order only matters for human readability.
const (
	ColID              = "id"
	ColSourceFile      = "source_file"
	ColThumbnail       = "image_thumbnail"
	ColCategory        = "category"
	ColCategoryID      = "category_id"
	ColConfidence      = "confidence"
	ColUnitPrice       = "unit_price_estimate"
	ColNewPrice        = "new_price_estimate"
	ColTotalPrice      = "total_price"
	ColName            = "name"
	ColCondition       = "condition"
	ColQuantity        = "quantity"
	ColBox             = "bounding_box"
	ColComment         = "comment"
	ColPendingRemark   = "pending_remark"
	ColProcessedRemark = "processed_remark"
)

// knownOrder is the canonical column order. The thumbnail column is present
// only when embedding is enabled; custom columns follow the fixed set.
var knownOrder = []string{
	ColID,
	ColSourceFile,
	ColThumbnail,
	ColCategory,
	ColCategoryID,
	ColConfidence,
	ColUnitPrice,
	ColNewPrice,
	ColTotalPrice,
	ColName,
	ColCondition,
	ColQuantity,
	ColBox,
	ColComment,
	ColPendingRemark,
	ColProcessedRemark,
}

// legacyHeaders maps column names from earlier generations of the file
// format onto the canonical schema. The ambiguity between the two historical
// filename columns is resolved at load time: both feed source_file.
var legacyHeaders = map[string]string{
	"ID":                 ColID,
	"Fichier":            ColSourceFile,
	"Fichier Original":   ColSourceFile,
	"Image":              ColThumbnail,
	"Categorie":          ColCategory,
	"Categorie ID":       ColCategoryID,
	"Fiabilite":          ColConfidence,
	"Prix Unitaire":      ColUnitPrice,
	"Prix Neuf Estime":   ColNewPrice,
	"Prix Total":         ColTotalPrice,
	"Nom":                ColName,
	"Etat":               ColCondition,
	"Quantite":           ColQuantity,
	"Box 2D":             ColBox,
	"Commentaire":        ColComment,
	"Remarques":          ColPendingRemark,
	"Remarques traitées": ColProcessedRemark,
}

func canonicalHeader(name string) string {
	if mapped, ok := legacyHeaders[name]; ok {
		return mapped
	}
	return name
}
