package monero

// PublicKeyPair is the (spend, view) public key pair that, taken together,
// identify a Monero subaddress-less stealth destination.
type PublicKeyPair struct {
	spendKey *PublicKey
	viewKey  *PublicKey
}

// NewPublicKeyPair pairs a spend and a view public key.
func NewPublicKeyPair(spendKey, viewKey *PublicKey) *PublicKeyPair {
	return &PublicKeyPair{spendKey: spendKey, viewKey: viewKey}
}

// SpendKey returns the pair's public spend key.
func (kp *PublicKeyPair) SpendKey() *PublicKey {
	return kp.spendKey
}

// ViewKey returns the pair's public view key.
func (kp *PublicKeyPair) ViewKey() *PublicKey {
	return kp.viewKey
}
