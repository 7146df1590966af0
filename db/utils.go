package db

var (
	// NamespaceConfirmedDeposit holds one entry per validator pubkey whose
	// deposit transaction reached a successful receipt.
	NamespaceConfirmedDeposit = []byte("cd")
	// NamespacePendingBroadcast journals transactions that were broadcast
	// but whose inclusion is still unknown.
	NamespacePendingBroadcast = []byte("pb")

	EmptyKey  = []byte{}
	Separator = []byte("|")
)

func PrependNamespace(namespace []byte, key []byte) []byte {
	if namespace != nil {
		return append(append(namespace, Separator...), key...)
	}
	return key
}

func ConvNilToBytes(byteArray []byte) []byte {
	if byteArray == nil {
		return []byte{}
	}
	return byteArray
}
