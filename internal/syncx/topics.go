package syncx

const (
	TopicOrderSync     = "bison.order.sync"
	TopicInventorySync = "bison.inventory.sync"
)

// Partition key = platform:external_id so all events for one order stay ordered.
func PartitionKey(platform, externalID string) []byte {
	return []byte(platform + ":" + externalID)
}
