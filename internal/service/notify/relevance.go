package notify

import (
	"bazaar/internal/model"
)

// Recipients role-partitioned recipient sets for one status change.
// The acting user never appears in any set.
type Recipients struct {
	BuyerKeys   map[string]struct{}
	SellerKeys  map[string]struct{}
	CourierKeys map[string]struct{}
	AdminKeys   map[string]struct{}
}

// ForRole returns the set for a role name
func (r Recipients) ForRole(role string) map[string]struct{} {
	switch role {
	case model.RoleBuyer:
		return r.BuyerKeys
	case model.RoleSeller:
		return r.SellerKeys
	case model.RoleDelivery:
		return r.CourierKeys
	case model.RoleAdmin:
		return r.AdminKeys
	default:
		return nil
	}
}

// Total returns the total number of recipients across all roles
func (r Recipients) Total() int {
	return len(r.BuyerKeys) + len(r.SellerKeys) + len(r.CourierKeys) + len(r.AdminKeys)
}

// ResolveRecipients computes who is relevant to a set of item-level status
// changes on an order. Pure function: the courier relation and admin roster
// are passed in, nothing is fetched.
//
//   - buyer: the order's buyer, unless they are the actor
//   - sellers: owners of the changed items, minus the actor
//   - couriers: couriers linked to those sellers, minus the actor
//   - admins: the full admin roster, minus the actor
func ResolveRecipients(
	order *model.Order,
	changed []model.ItemChange,
	actorKey string,
	couriersBySeller map[string][]string,
	adminKeys []string,
) Recipients {
	r := Recipients{
		BuyerKeys:   make(map[string]struct{}),
		SellerKeys:  make(map[string]struct{}),
		CourierKeys: make(map[string]struct{}),
		AdminKeys:   make(map[string]struct{}),
	}
	if order == nil {
		return r
	}

	if order.BuyerKey != "" && order.BuyerKey != actorKey {
		r.BuyerKeys[order.BuyerKey] = struct{}{}
	}

	affectedSellers := make(map[string]struct{})
	for _, change := range changed {
		item := order.ItemByProduct(change.ProductKey)
		if item == nil {
			continue
		}
		affectedSellers[item.SellerKey] = struct{}{}
	}

	for seller := range affectedSellers {
		if seller != actorKey {
			r.SellerKeys[seller] = struct{}{}
		}
		for _, courier := range couriersBySeller[seller] {
			if courier != actorKey {
				r.CourierKeys[courier] = struct{}{}
			}
		}
	}

	for _, admin := range adminKeys {
		if admin != "" && admin != actorKey {
			r.AdminKeys[admin] = struct{}{}
		}
	}

	return r
}
