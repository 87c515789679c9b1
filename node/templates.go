package node

// templates.go contains sane default templates for assembling a RedCloud
// node process.

var (
	// MetadataNodeTemplate runs only the metadata-node role.
	MetadataNodeTemplate = NodeParams{
		CreateMetadataNode: true,
		MetadataListenAddr: ":0",
	}
	// StorageNodeTemplate runs only the storage-node role.
	StorageNodeTemplate = NodeParams{
		CreateStorageNode: true,
		StorageListenAddr: ":0",
	}
	// CombinedNodeTemplate runs both roles in a single process, for small
	// clusters and local development where colocating them is acceptable
	// (spec §2 does not forbid it).
	CombinedNodeTemplate = NodeParams{
		CreateMetadataNode: true,
		CreateStorageNode:  true,
		MetadataListenAddr: ":0",
		StorageListenAddr:  ":0",
	}
)

// MetadataNode returns a MetadataNodeTemplate filled out with the provided
// dir.
func MetadataNode(dir string) NodeParams {
	template := MetadataNodeTemplate
	template.Dir = dir
	return template
}

// StorageNode returns a StorageNodeTemplate filled out with the provided
// dir.
func StorageNode(dir string) NodeParams {
	template := StorageNodeTemplate
	template.Dir = dir
	return template
}

// CombinedNode returns a CombinedNodeTemplate filled out with the provided
// dir.
func CombinedNode(dir string) NodeParams {
	template := CombinedNodeTemplate
	template.Dir = dir
	return template
}
