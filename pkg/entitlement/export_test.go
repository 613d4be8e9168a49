package entitlement

var NewPaddleProviderWithAPI = newPaddleProvider
