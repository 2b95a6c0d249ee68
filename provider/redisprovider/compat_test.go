package redisprovider

import "github.com/MrEthical07/portalAuth/provider/pgprofile"

var _ ProfileStore = (*pgprofile.Store)(nil)
