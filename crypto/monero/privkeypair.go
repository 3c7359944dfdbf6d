package monero

// PrivateKeyPair is a Monero (spend, view) private key pair: the full set
// of secrets needed to both spend and scan for a Monero output.
type PrivateKeyPair struct {
	spendKey *PrivateSpendKey
	viewKey  *PrivateViewKey
}

// NewPrivateKeyPair pairs a spend and view private key.
func NewPrivateKeyPair(spendKey *PrivateSpendKey, viewKey *PrivateViewKey) *PrivateKeyPair {
	return &PrivateKeyPair{spendKey: spendKey, viewKey: viewKey}
}

// GenerateKeys generates a fresh random (spend, view) key pair.
func GenerateKeys() (*PrivateKeyPair, error) {
	sk, err := GenerateSpendKey()
	if err != nil {
		return nil, err
	}
	vk, err := GenerateViewKey()
	if err != nil {
		return nil, err
	}
	return NewPrivateKeyPair(sk, vk), nil
}

// SpendKey returns the pair's private spend key.
func (kp *PrivateKeyPair) SpendKey() *PrivateSpendKey {
	return kp.spendKey
}

// ViewKey returns the pair's private view key.
func (kp *PrivateKeyPair) ViewKey() *PrivateViewKey {
	return kp.viewKey
}

// PublicKeyPair derives the public (spend, view) pair.
func (kp *PrivateKeyPair) PublicKeyPair() *PublicKeyPair {
	return NewPublicKeyPair(kp.spendKey.Public(), kp.viewKey.Public())
}
