package loanbook

import "github.com/xraph/loanbook/types"

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Money constructors
var (
	PHP        = types.PHP
	USD        = types.USD
	Zero       = types.Zero
	Sum        = types.Sum
	ParseMoney = types.ParseMoney
)
