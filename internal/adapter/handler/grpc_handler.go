package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/posbuzz/internal/core/domain"
	"github.com/rl1809/posbuzz/internal/core/service"
	"github.com/rl1809/posbuzz/internal/obs"
)

const createSaleMethod = "/posbuzz.v1.SalesService/CreateSale"

type SaleLineMessage struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type CreateSaleRequest struct {
	Items          []SaleLineMessage `json:"items"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

type CreateSaleResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Sale    *domain.Sale `json:"sale,omitempty"`
}

type SalesServer interface {
	CreateSale(ctx context.Context, req *CreateSaleRequest) (*CreateSaleResponse, error)
}

type GRPCHandler struct {
	sales *service.SaleService
}

func NewGRPCHandler(sales *service.SaleService) *GRPCHandler {
	return &GRPCHandler{sales: sales}
}

// CreateSale reports business rejections in the response body and
// transaction failures as gRPC status errors so clients can retry on
// codes.Unavailable.
func (h *GRPCHandler) CreateSale(ctx context.Context, req *CreateSaleRequest) (*CreateSaleResponse, error) {
	in := domain.CreateSaleRequest{
		Items:          make([]domain.SaleLine, 0, len(req.Items)),
		IdempotencyKey: req.IdempotencyKey,
	}
	for _, line := range req.Items {
		in.Items = append(in.Items, domain.SaleLine{ProductID: line.ProductID, Quantity: int(line.Quantity)})
	}

	sale, err := h.sales.CreateSale(ctx, in)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrValidation),
			errors.Is(err, domain.ErrProductNotFound),
			errors.Is(err, domain.ErrInsufficientStock):
			return &CreateSaleResponse{Success: false, Message: err.Error()}, nil
		case errors.Is(err, domain.ErrDuplicateRequest):
			return &CreateSaleResponse{Success: false, Message: "duplicate request"}, nil
		case domain.IsTransient(err):
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		obs.Logger.Error("grpc_create_sale_failed", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}

	return &CreateSaleResponse{
		Success: true,
		Message: "sale recorded successfully",
		Sale:    sale,
	}, nil
}

func createSaleHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateSaleRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SalesServer).CreateSale(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: createSaleMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SalesServer).CreateSale(ctx, req.(*CreateSaleRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var salesServiceDesc = grpc.ServiceDesc{
	ServiceName: "posbuzz.v1.SalesService",
	HandlerType: (*SalesServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "CreateSale",
			Handler:    createSaleHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "posbuzz/v1/sales.proto",
}

func RegisterSalesServer(s grpc.ServiceRegistrar, srv SalesServer) {
	s.RegisterService(&salesServiceDesc, srv)
}

// SalesClient calls SalesService using the JSON codec.
type SalesClient struct {
	cc grpc.ClientConnInterface
}

func NewSalesClient(cc grpc.ClientConnInterface) *SalesClient {
	return &SalesClient{cc: cc}
}

func (c *SalesClient) CreateSale(ctx context.Context, req *CreateSaleRequest, opts ...grpc.CallOption) (*CreateSaleResponse, error) {
	out := new(CreateSaleResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(JSONCodecName)}, opts...)
	if err := c.cc.Invoke(ctx, createSaleMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
