package domain

var Tables = []interface{}{
	// Catalog
	&CatalogDocument{},
	// System
	&SyncLog{},
}
