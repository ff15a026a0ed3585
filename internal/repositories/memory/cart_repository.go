package memory

import (
	"context"
	"strings"

	domain "github.com/ordella/api/internal/domain"
)

type cartRepository struct{ reg *Registry }

func (r *cartRepository) Insert(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	id := strings.TrimSpace(cart.ID)
	if id == "" {
		return domain.Cart{}, notFound("cart id is required")
	}
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	r.reg.carts[id] = cloneCart(cart)
	return cloneCart(cart), nil
}

func (r *cartRepository) FindByID(_ context.Context, cartID string) (domain.Cart, error) {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	cart, ok := r.reg.carts[strings.TrimSpace(cartID)]
	if !ok {
		return domain.Cart{}, notFound("cart %s not found", cartID)
	}
	return cloneCart(cart), nil
}

func (r *cartRepository) Save(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	id := strings.TrimSpace(cart.ID)
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	if _, ok := r.reg.carts[id]; !ok {
		return domain.Cart{}, notFound("cart %s not found", id)
	}
	r.reg.carts[id] = cloneCart(cart)
	return cloneCart(cart), nil
}

func (r *cartRepository) Delete(_ context.Context, cartID string) error {
	r.reg.mu.Lock()
	defer r.reg.mu.Unlock()
	delete(r.reg.carts, strings.TrimSpace(cartID))
	return nil
}

func cloneCart(cart domain.Cart) domain.Cart {
	dup := cart
	if cart.Lines != nil {
		dup.Lines = make([]domain.CartLine, len(cart.Lines))
		copy(dup.Lines, cart.Lines)
	}
	if cart.Metadata != nil {
		dup.Metadata = make(map[string]string, len(cart.Metadata))
		for k, v := range cart.Metadata {
			dup.Metadata[k] = v
		}
	}
	return dup
}
