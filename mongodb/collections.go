package mongodb

const (
	AccountsCollection = "accounts"        // Local user accounts
	KeyRingCollection  = "keyring_entries" // Shared key ring entries, one document per generation
)
